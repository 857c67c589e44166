//go:build !pjsua

package pjsua

// engine is a stub implementation used when the pjsua build tag is disabled.
// Every operation reports StatusNotSupported so initialization fails early.
type engine struct{}

func newEngine() Engine { return &engine{} }

func (e *engine) Create() error                            { return StatusNotSupported }
func (e *engine) Init(Config, Callbacks) error             { return StatusNotSupported }
func (e *engine) CreateTransport(TransportType, int) error { return StatusNotSupported }
func (e *engine) Start() error                             { return StatusNotSupported }
func (e *engine) Destroy() error                           { return nil }
func (e *engine) SetLogFile(string, bool) error            { return StatusNotSupported }

func (e *engine) AddAccount(AccountConfig) (int, error) { return -1, StatusNotSupported }
func (e *engine) DelAccount(int) error                  { return StatusNotSupported }
func (e *engine) AccountValid(int) bool                 { return false }
func (e *engine) AccountInfo(int) (AccountInfo, error)  { return AccountInfo{}, StatusNotSupported }

func (e *engine) MakeCall(int, string, Headers) (int, error)    { return -1, StatusNotSupported }
func (e *engine) Answer(int, int) error                         { return StatusNotSupported }
func (e *engine) Hangup(int) error                              { return StatusNotSupported }
func (e *engine) HangupAll()                                    {}
func (e *engine) Transfer(int, string) error                    { return StatusNotSupported }
func (e *engine) CallInfo(int) (CallInfo, error)                { return CallInfo{}, StatusNotSupported }
func (e *engine) CallDump(int) (string, error)                  { return "", StatusNotSupported }
func (e *engine) DialDTMF(int, string) error                    { return StatusNotSupported }
func (e *engine) SendRequest(int, string, string, string) error { return StatusNotSupported }

func (e *engine) ConfConnect(int, int) error        { return StatusNotSupported }
func (e *engine) ConfDisconnect(int, int) error     { return StatusNotSupported }
func (e *engine) AdjustRxLevel(int, float32) error  { return StatusNotSupported }
func (e *engine) AdjustTxLevel(int, float32) error  { return StatusNotSupported }
func (e *engine) SignalLevel(int) (int, int, error) { return 0, 0, StatusNotSupported }

func (e *engine) SetCodecPriority(string, int) error { return StatusNotSupported }
func (e *engine) Codecs() ([]CodecInfo, error)       { return nil, StatusNotSupported }

func (e *engine) AudioDevices() ([]AudioDevice, error) { return nil, StatusNotSupported }
func (e *engine) SetSoundDevice(int, int) error        { return StatusNotSupported }
func (e *engine) ReinitSoundDevices() error            { return StatusNotSupported }

func (e *engine) CreatePlayer(string) (int, error) { return -1, StatusNotSupported }
func (e *engine) DestroyPlayer(int) error          { return StatusNotSupported }
func (e *engine) ConnectPlayer(int, int) error     { return StatusNotSupported }
func (e *engine) DisconnectPlayer() error          { return nil }
