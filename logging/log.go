// Package logging provides the reactor's logging facade. It wraps
// github.com/cihub/seelog behind a small interface, the way the teacher
// repo's agent/log package wraps the same library, so the reactor core
// never takes a hard dependency on seelog's concrete logger type and an
// embedding application can swap in its own.
package logging

import (
	"sync"

	"github.com/cihub/seelog"
)

// T is the logging interface used throughout the reactor, pipe, endpoint
// and protocol packages. It matches the subset of seelog.LoggerInterface
// this module actually calls.
type T interface {
	Tracef(format string, params ...interface{})
	Debugf(format string, params ...interface{})
	Infof(format string, params ...interface{})
	Warnf(format string, params ...interface{})
	Errorf(format string, params ...interface{})
}

type seelogAdapter struct {
	seelog.LoggerInterface
}

func (a seelogAdapter) Warnf(format string, params ...interface{}) {
	_ = a.LoggerInterface.Warnf(format, params...)
}

func (a seelogAdapter) Errorf(format string, params ...interface{}) {
	_ = a.LoggerInterface.Errorf(format, params...)
}

const defaultConfig = `
<seelog type="sync" minlevel="info">
	<outputs formatid="main">
		<console/>
	</outputs>
	<formats>
		<format id="main" format="%Date %Time [%LEVEL] %Msg%n"/>
	</formats>
</seelog>
`

var (
	mu      sync.RWMutex
	current T
)

func init() {
	l, err := seelog.LoggerFromConfigAsBytes([]byte(defaultConfig))
	if err != nil {
		l = seelog.Default
	}
	current = seelogAdapter{l}
}

// Get returns the process-wide default logger.
func Get() T {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetConfig replaces the default logger with one built from a seelog XML
// config, falling back to the built-in default on parse failure. Returns
// whether the supplied config parsed successfully.
func SetConfig(xmlConfig string) bool {
	l, err := seelog.LoggerFromConfigAsBytes([]byte(xmlConfig))
	if err != nil {
		return false
	}
	mu.Lock()
	current = seelogAdapter{l}
	mu.Unlock()
	return true
}

// Replace installs an arbitrary logger, for embedding applications that
// want to route reactor logs through their own sink rather than seelog.
func Replace(l T) {
	mu.Lock()
	current = l
	mu.Unlock()
}
