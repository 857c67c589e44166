//go:build pjsua

package pjsua

/*
#cgo pkg-config: libpjproject
#include <stdlib.h>
#include <pjsua-lib/pjsua.h>

extern void goOnIncomingHeader(int call_id, char *name, int name_len, char *value, int value_len);
extern void goOnIncomingCall(int acc_id, int call_id);
extern void goOnCallState(int call_id);
extern void goOnCallMediaState(int call_id);
extern void goOnRegState(int acc_id);

static void sp_on_incoming_call(pjsua_acc_id acc_id, pjsua_call_id call_id, pjsip_rx_data *rdata) {
    const pjsip_msg *msg = rdata->msg_info.msg;
    const pjsip_hdr *hdr = msg->hdr.next, *end = &msg->hdr;
    for (; hdr != end; hdr = hdr->next) {
        if (hdr->type != PJSIP_H_OTHER) {
            continue;
        }
        const pjsip_generic_string_hdr *s = (const pjsip_generic_string_hdr *)hdr;
        goOnIncomingHeader(call_id, hdr->name.ptr, (int)hdr->name.slen, s->hvalue.ptr, (int)s->hvalue.slen);
    }
    goOnIncomingCall(acc_id, call_id);
}

static void sp_on_call_state(pjsua_call_id call_id, pjsip_event *e) {
    PJ_UNUSED_ARG(e);
    goOnCallState(call_id);
}

static void sp_on_call_media_state(pjsua_call_id call_id) {
    goOnCallMediaState(call_id);
}

static void sp_on_reg_state(pjsua_acc_id acc_id) {
    goOnRegState(acc_id);
}

static void sp_thread(void) {
    static __thread pj_thread_desc desc;
    static __thread pj_thread_t *thread;
    if (!pj_thread_is_registered()) {
        pj_bzero(desc, sizeof(desc));
        pj_thread_register("go", desc, &thread);
    }
}

static pj_status_t sp_init(char **stun, int stun_cnt, int ice, int ec, int mwi, int console_level) {
    pjsua_config cfg;
    pjsua_logging_config log_cfg;
    pjsua_media_config media_cfg;
    int i;

    pjsua_config_default(&cfg);
    pjsua_media_config_default(&media_cfg);
    pjsua_logging_config_default(&log_cfg);

    if (ec) {
        media_cfg.ec_options = PJMEDIA_ECHO_SPEEX;
    }
    media_cfg.enable_ice = ice ? PJ_TRUE : PJ_FALSE;
    for (i = 0; i < stun_cnt && i < PJ_ARRAY_SIZE(cfg.stun_srv); i++) {
        cfg.stun_srv[cfg.stun_srv_cnt++] = pj_str(stun[i]);
    }
    cfg.enable_unsolicited_mwi = mwi ? PJ_TRUE : PJ_FALSE;
    cfg.cb.on_incoming_call = &sp_on_incoming_call;
    cfg.cb.on_call_state = &sp_on_call_state;
    cfg.cb.on_call_media_state = &sp_on_call_media_state;
    cfg.cb.on_reg_state = &sp_on_reg_state;
    log_cfg.console_level = console_level;

    return pjsua_init(&cfg, &log_cfg, &media_cfg);
}

static pj_status_t sp_transport(int tcp, unsigned port) {
    pjsua_transport_config cfg;
    pjsua_transport_id id;
    pjsua_transport_config_default(&cfg);
    cfg.port = port;
    return pjsua_transport_create(tcp ? PJSIP_TRANSPORT_TCP : PJSIP_TRANSPORT_UDP, &cfg, &id);
}

static pj_status_t sp_logging(char *path, int append) {
    pjsua_logging_config log_cfg;
    pjsua_logging_config_default(&log_cfg);
    if (append) {
        log_cfg.log_file_flags = PJ_O_APPEND;
    }
    log_cfg.log_filename = pj_str(path);
    log_cfg.decor |= PJ_LOG_HAS_CR;
    return pjsua_reconfigure_logging(&log_cfg);
}

static pj_status_t sp_acc_add(char *id, char *reg_uri, char *realm, char *scheme,
                              char *user, char *password, int rewrite, int *acc_id) {
    pjsua_acc_config cfg;
    pjsua_acc_id out;
    pj_status_t status;

    pjsua_acc_config_default(&cfg);
    cfg.id = pj_str(id);
    cfg.reg_uri = pj_str(reg_uri);
    cfg.cred_count = 1;
    cfg.cred_info[0].realm = pj_str(realm);
    cfg.cred_info[0].scheme = pj_str(scheme);
    cfg.cred_info[0].username = pj_str(user);
    cfg.cred_info[0].data_type = PJSIP_CRED_DATA_PLAIN_PASSWD;
    cfg.cred_info[0].data = pj_str(password);
    cfg.allow_contact_rewrite = rewrite ? PJ_TRUE : PJ_FALSE;

    status = pjsua_acc_add(&cfg, PJ_TRUE, &out);
    *acc_id = out;
    return status;
}

static pj_status_t sp_make_call(int acc_id, char *uri, char **names, char **values, int n, int *call_id) {
    pj_str_t dst = pj_str(uri);
    pjsua_msg_data msg_data;
    pjsua_call_id out = PJSUA_INVALID_ID;
    pj_pool_t *pool = NULL;
    pj_status_t status;
    int i;

    pjsua_msg_data_init(&msg_data);
    if (n > 0) {
        pool = pjsua_pool_create("hdr", 512, 512);
        for (i = 0; i < n; i++) {
            pj_str_t hname = pj_str(names[i]);
            pj_str_t hvalue = pj_str(values[i]);
            pjsip_generic_string_hdr *hdr = pjsip_generic_string_hdr_create(pool, &hname, &hvalue);
            pj_list_push_back(&msg_data.hdr_list, hdr);
        }
    }
    status = pjsua_call_make_call(acc_id, &dst, 0, NULL, &msg_data, &out);
    if (pool) {
        pj_pool_release(pool);
    }
    *call_id = out;
    return status;
}

static pj_status_t sp_xfer(int call_id, char *uri) {
    pj_str_t dst = pj_str(uri);
    return pjsua_call_xfer(call_id, &dst, NULL);
}

static pj_status_t sp_dial_dtmf(int call_id, char *digits) {
    pj_str_t d = pj_str(digits);
    return pjsua_call_dial_dtmf(call_id, &d);
}

static pj_status_t sp_send_request(int call_id, char *method, char *content_type, char *body) {
    pj_str_t m = pj_str(method);
    pjsua_msg_data msg_data;
    pjsua_msg_data_init(&msg_data);
    msg_data.content_type = pj_str(content_type);
    msg_data.msg_body = pj_str(body);
    return pjsua_call_send_request(call_id, &m, &msg_data);
}

static pj_status_t sp_codec_priority(char *codec, int prio) {
    pj_str_t id = pj_str(codec);
    return pjsua_codec_set_priority(&id, (pj_uint8_t)prio);
}

static pj_status_t sp_reinit_sound(void) {
    pjsua_set_null_snd_dev();
    return pjmedia_aud_dev_refresh();
}

static pj_pool_t *sp_player_pool = NULL;
static pjmedia_port *sp_file_port = NULL;
static pjmedia_snd_port *sp_snd_port = NULL;
static int sp_snd_dev = -2;

static pj_status_t sp_player_create(char *file) {
    if (!sp_player_pool) {
        sp_player_pool = pjsua_pool_create("wav", 512, 512);
        if (!sp_player_pool) {
            return PJ_ENOMEM;
        }
    }
    if (sp_file_port) {
        pjmedia_port_destroy(sp_file_port);
        sp_file_port = NULL;
    }
    return pjmedia_wav_player_port_create(sp_player_pool, file, 20, 0, 0, &sp_file_port);
}

static pj_status_t sp_player_connect(int device) {
    pj_status_t status;
    if (!sp_file_port) {
        return PJ_EINVALIDOP;
    }
    if (sp_snd_port && device != sp_snd_dev) {
        pjmedia_snd_port_destroy(sp_snd_port);
        sp_snd_port = NULL;
    }
    if (!sp_snd_port) {
        status = pjmedia_snd_port_create_player(sp_player_pool, device,
                                                PJMEDIA_PIA_SRATE(&sp_file_port->info),
                                                PJMEDIA_PIA_CCNT(&sp_file_port->info),
                                                PJMEDIA_PIA_SPF(&sp_file_port->info),
                                                PJMEDIA_PIA_BITS(&sp_file_port->info),
                                                0, &sp_snd_port);
        if (status != PJ_SUCCESS) {
            return status;
        }
        sp_snd_dev = device;
    }
    return pjmedia_snd_port_connect(sp_snd_port, sp_file_port);
}

static pj_status_t sp_player_disconnect(void) {
    if (sp_snd_port) {
        return pjmedia_snd_port_disconnect(sp_snd_port);
    }
    return PJ_SUCCESS;
}

static pj_status_t sp_player_destroy(void) {
    if (sp_file_port) {
        pjmedia_port_destroy(sp_file_port);
        sp_file_port = NULL;
    }
    return PJ_SUCCESS;
}
*/
import "C"

import (
	"runtime"
	"sync"
	"unsafe"
)

// dispatcher is the single process-wide target of the native callback table.
// It only forwards into the Callbacks injected through Init.
var dispatcher struct {
	mu      sync.RWMutex
	cb      Callbacks
	pending map[int]Headers
}

//export goOnIncomingHeader
func goOnIncomingHeader(callID C.int, name *C.char, nameLen C.int, value *C.char, valueLen C.int) {
	hdr := Header{Name: C.GoStringN(name, nameLen), Value: C.GoStringN(value, valueLen)}
	dispatcher.mu.Lock()
	if dispatcher.pending == nil {
		dispatcher.pending = make(map[int]Headers)
	}
	dispatcher.pending[int(callID)] = append(dispatcher.pending[int(callID)], hdr)
	dispatcher.mu.Unlock()
}

//export goOnIncomingCall
func goOnIncomingCall(accID, callID C.int) {
	dispatcher.mu.Lock()
	hdrs := dispatcher.pending[int(callID)]
	delete(dispatcher.pending, int(callID))
	cb := dispatcher.cb
	dispatcher.mu.Unlock()
	if cb != nil {
		cb.OnIncomingCall(int(accID), int(callID), hdrs)
	}
}

//export goOnCallState
func goOnCallState(callID C.int) {
	if cb := callbacks(); cb != nil {
		cb.OnCallState(int(callID))
	}
}

//export goOnCallMediaState
func goOnCallMediaState(callID C.int) {
	if cb := callbacks(); cb != nil {
		cb.OnCallMediaState(int(callID))
	}
}

//export goOnRegState
func goOnRegState(accID C.int) {
	if cb := callbacks(); cb != nil {
		cb.OnRegState(int(accID))
	}
}

func callbacks() Callbacks {
	dispatcher.mu.RLock()
	defer dispatcher.mu.RUnlock()
	return dispatcher.cb
}

type engine struct{}

func newEngine() Engine { return &engine{} }

// native runs f on a locked OS thread registered with the engine.
func native(f func() C.pj_status_t) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	C.sp_thread()
	return toError(f())
}

func toError(s C.pj_status_t) error {
	if s == C.PJ_SUCCESS {
		return nil
	}
	return Status(s)
}

func goStr(s C.pj_str_t) string {
	if s.ptr == nil || s.slen <= 0 {
		return ""
	}
	return C.GoStringN(s.ptr, C.int(s.slen))
}

func (e *engine) Create() error {
	return native(func() C.pj_status_t { return C.pjsua_create() })
}

func (e *engine) Init(cfg Config, cb Callbacks) error {
	dispatcher.mu.Lock()
	dispatcher.cb = cb
	dispatcher.mu.Unlock()

	stun := make([]*C.char, len(cfg.StunServers))
	for i, s := range cfg.StunServers {
		stun[i] = C.CString(s)
		defer C.free(unsafe.Pointer(stun[i]))
	}
	var stunPtr **C.char
	if len(stun) > 0 {
		stunPtr = (**C.char)(C.malloc(C.size_t(len(stun)) * C.size_t(unsafe.Sizeof(stun[0]))))
		defer C.free(unsafe.Pointer(stunPtr))
		copy(unsafe.Slice(stunPtr, len(stun)), stun)
	}
	return native(func() C.pj_status_t {
		return C.sp_init(stunPtr, C.int(len(stun)), cBool(cfg.EnableICE), cBool(cfg.EchoCanceller),
			cBool(cfg.UnsolicitedMWI), C.int(cfg.ConsoleLogLevel))
	})
}

func (e *engine) CreateTransport(t TransportType, port int) error {
	return native(func() C.pj_status_t { return C.sp_transport(cBool(t == TransportTCP), C.uint(port)) })
}

func (e *engine) Start() error {
	return native(func() C.pj_status_t { return C.pjsua_start() })
}

func (e *engine) Destroy() error {
	err := native(func() C.pj_status_t { return C.pjsua_destroy() })
	dispatcher.mu.Lock()
	dispatcher.cb = nil
	dispatcher.pending = nil
	dispatcher.mu.Unlock()
	return err
}

func (e *engine) SetLogFile(path string, appendMode bool) error {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return native(func() C.pj_status_t { return C.sp_logging(cpath, cBool(appendMode)) })
}

func (e *engine) AddAccount(cfg AccountConfig) (int, error) {
	strs := []*C.char{
		C.CString(cfg.ID), C.CString(cfg.RegURI), C.CString(cfg.Realm),
		C.CString(cfg.Scheme), C.CString(cfg.Username), C.CString(cfg.Password),
	}
	defer func() {
		for _, s := range strs {
			C.free(unsafe.Pointer(s))
		}
	}()
	var id C.int
	err := native(func() C.pj_status_t {
		return C.sp_acc_add(strs[0], strs[1], strs[2], strs[3], strs[4], strs[5],
			cBool(cfg.AllowContactRewrite), &id)
	})
	if err != nil {
		return -1, err
	}
	return int(id), nil
}

func (e *engine) DelAccount(accID int) error {
	return native(func() C.pj_status_t { return C.pjsua_acc_del(C.pjsua_acc_id(accID)) })
}

func (e *engine) AccountValid(accID int) bool {
	var valid C.pj_bool_t
	_ = native(func() C.pj_status_t {
		valid = C.pjsua_acc_is_valid(C.pjsua_acc_id(accID))
		return C.PJ_SUCCESS
	})
	return valid != 0
}

func (e *engine) AccountInfo(accID int) (AccountInfo, error) {
	var ai C.pjsua_acc_info
	err := native(func() C.pj_status_t { return C.pjsua_acc_get_info(C.pjsua_acc_id(accID), &ai) })
	if err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		ID:               int(ai.id),
		URI:              goStr(ai.acc_uri),
		Status:           int(ai.status),
		StatusText:       goStr(ai.status_text),
		OnlineStatusText: goStr(ai.online_status_text),
	}, nil
}

func (e *engine) MakeCall(accID int, uri string, headers Headers) (int, error) {
	curi := C.CString(uri)
	defer C.free(unsafe.Pointer(curi))

	n := len(headers)
	var names, values **C.char
	if n > 0 {
		size := C.size_t(n) * C.size_t(unsafe.Sizeof((*C.char)(nil)))
		names = (**C.char)(C.malloc(size))
		values = (**C.char)(C.malloc(size))
		defer C.free(unsafe.Pointer(names))
		defer C.free(unsafe.Pointer(values))
		ns, vs := unsafe.Slice(names, n), unsafe.Slice(values, n)
		for i, h := range headers {
			ns[i] = C.CString(h.Name)
			vs[i] = C.CString(h.Value)
			defer C.free(unsafe.Pointer(ns[i]))
			defer C.free(unsafe.Pointer(vs[i]))
		}
	}
	var id C.int
	err := native(func() C.pj_status_t {
		return C.sp_make_call(C.int(accID), curi, names, values, C.int(n), &id)
	})
	if err != nil {
		return -1, err
	}
	return int(id), nil
}

func (e *engine) Answer(callID, code int) error {
	return native(func() C.pj_status_t {
		return C.pjsua_call_answer(C.pjsua_call_id(callID), C.uint(code), nil, nil)
	})
}

func (e *engine) Hangup(callID int) error {
	return native(func() C.pj_status_t {
		return C.pjsua_call_hangup(C.pjsua_call_id(callID), 0, nil, nil)
	})
}

func (e *engine) HangupAll() {
	_ = native(func() C.pj_status_t {
		C.pjsua_call_hangup_all()
		return C.PJ_SUCCESS
	})
}

func (e *engine) Transfer(callID int, uri string) error {
	curi := C.CString(uri)
	defer C.free(unsafe.Pointer(curi))
	return native(func() C.pj_status_t { return C.sp_xfer(C.int(callID), curi) })
}

func (e *engine) CallInfo(callID int) (CallInfo, error) {
	var ci C.pjsua_call_info
	err := native(func() C.pj_status_t { return C.pjsua_call_get_info(C.pjsua_call_id(callID), &ci) })
	if err != nil {
		return CallInfo{ID: callID, ConfSlot: -1}, err
	}
	return CallInfo{
		ID:              int(ci.id),
		State:           InviteState(ci.state),
		StateText:       goStr(ci.state_text),
		LastStatus:      int(ci.last_status),
		LastStatusText:  goStr(ci.last_status_text),
		RemoteContact:   goStr(ci.remote_contact),
		RemoteInfo:      goStr(ci.remote_info),
		MediaStatus:     MediaStatus(ci.media_status),
		ConfSlot:        int(ci.conf_slot),
		ConnectDuration: int(ci.connect_duration.sec),
	}, nil
}

func (e *engine) CallDump(callID int) (string, error) {
	const size = 8192
	buf := (*C.char)(C.malloc(size))
	defer C.free(unsafe.Pointer(buf))
	indent := C.CString("  ")
	defer C.free(unsafe.Pointer(indent))
	err := native(func() C.pj_status_t {
		return C.pjsua_call_dump(C.pjsua_call_id(callID), C.PJ_TRUE, buf, size, indent)
	})
	if err != nil {
		return "", err
	}
	return C.GoString(buf), nil
}

func (e *engine) DialDTMF(callID int, digits string) error {
	cd := C.CString(digits)
	defer C.free(unsafe.Pointer(cd))
	return native(func() C.pj_status_t { return C.sp_dial_dtmf(C.int(callID), cd) })
}

func (e *engine) SendRequest(callID int, method, contentType, body string) error {
	cm, ct, cb := C.CString(method), C.CString(contentType), C.CString(body)
	defer C.free(unsafe.Pointer(cm))
	defer C.free(unsafe.Pointer(ct))
	defer C.free(unsafe.Pointer(cb))
	return native(func() C.pj_status_t { return C.sp_send_request(C.int(callID), cm, ct, cb) })
}

func (e *engine) ConfConnect(src, dst int) error {
	return native(func() C.pj_status_t {
		return C.pjsua_conf_connect(C.pjsua_conf_port_id(src), C.pjsua_conf_port_id(dst))
	})
}

func (e *engine) ConfDisconnect(src, dst int) error {
	return native(func() C.pj_status_t {
		return C.pjsua_conf_disconnect(C.pjsua_conf_port_id(src), C.pjsua_conf_port_id(dst))
	})
}

func (e *engine) AdjustRxLevel(slot int, level float32) error {
	return native(func() C.pj_status_t {
		return C.pjsua_conf_adjust_rx_level(C.pjsua_conf_port_id(slot), C.float(level))
	})
}

func (e *engine) AdjustTxLevel(slot int, level float32) error {
	return native(func() C.pj_status_t {
		return C.pjsua_conf_adjust_tx_level(C.pjsua_conf_port_id(slot), C.float(level))
	})
}

func (e *engine) SignalLevel(slot int) (int, int, error) {
	var tx, rx C.uint
	err := native(func() C.pj_status_t {
		return C.pjsua_conf_get_signal_level(C.pjsua_conf_port_id(slot), &tx, &rx)
	})
	return int(tx), int(rx), err
}

func (e *engine) SetCodecPriority(codec string, priority int) error {
	cc := C.CString(codec)
	defer C.free(unsafe.Pointer(cc))
	return native(func() C.pj_status_t { return C.sp_codec_priority(cc, C.int(priority)) })
}

func (e *engine) Codecs() ([]CodecInfo, error) {
	var codecs [32]C.pjsua_codec_info
	count := C.uint(len(codecs))
	err := native(func() C.pj_status_t { return C.pjsua_enum_codecs(&codecs[0], &count) })
	if err != nil {
		return nil, err
	}
	out := make([]CodecInfo, 0, int(count))
	for i := 0; i < int(count); i++ {
		out = append(out, CodecInfo{ID: goStr(codecs[i].codec_id), Priority: int(codecs[i].priority)})
	}
	return out, nil
}

func (e *engine) AudioDevices() ([]AudioDevice, error) {
	var out []AudioDevice
	err := native(func() C.pj_status_t {
		count := int(C.pjmedia_aud_dev_count())
		for i := 0; i < count; i++ {
			var info C.pjmedia_aud_dev_info
			if C.pjmedia_aud_dev_get_info(C.pjmedia_aud_dev_index(i), &info) != C.PJ_SUCCESS {
				continue
			}
			out = append(out, AudioDevice{
				Index:       i,
				Name:        C.GoString(&info.name[0]),
				InputCount:  int(info.input_count),
				OutputCount: int(info.output_count),
				Caps:        int(info.caps),
			})
		}
		return C.PJ_SUCCESS
	})
	return out, err
}

func (e *engine) SetSoundDevice(input, output int) error {
	return native(func() C.pj_status_t { return C.pjsua_set_snd_dev(C.int(input), C.int(output)) })
}

func (e *engine) ReinitSoundDevices() error {
	return native(func() C.pj_status_t { return C.sp_reinit_sound() })
}

func (e *engine) CreatePlayer(file string) (int, error) {
	cf := C.CString(file)
	defer C.free(unsafe.Pointer(cf))
	if err := native(func() C.pj_status_t { return C.sp_player_create(cf) }); err != nil {
		return -1, err
	}
	return 0, nil
}

func (e *engine) DestroyPlayer(int) error {
	return native(func() C.pj_status_t { return C.sp_player_destroy() })
}

func (e *engine) ConnectPlayer(_ int, device int) error {
	return native(func() C.pj_status_t { return C.sp_player_connect(C.int(device)) })
}

func (e *engine) DisconnectPlayer() error {
	return native(func() C.pj_status_t { return C.sp_player_disconnect() })
}

func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
