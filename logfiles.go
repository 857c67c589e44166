package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var errBadLogName = errors.New("invalid log file name")

// logPath resolves name inside dir. Only plain .log file names are accepted.
func logPath(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Ext(name) != ".log" {
		return "", fmt.Errorf("%w: %q", errBadLogName, name)
	}
	return filepath.Join(dir, name), nil
}

// logFileList returns the names of the log files in dir, the rotated
// backups included, sorted by name.
func logFileList(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".log" {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func logFileContent(dir, name string) (string, error) {
	path, err := logPath(dir, name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func deleteLogFile(dir, name string) error {
	path, err := logPath(dir, name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}
