package logging

import (
	"log"
	"os"
	"strings"
	"sync"
)

const (
	Critical = 50
	Fatal    = Critical
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
	NotSet   = 0
)

var (
	LogLevel      int = Warning
	logLevelMutex sync.Mutex
)

func init() {
	if level, ok := ParseLevel(os.Getenv("LOG_LEVEL")); ok {
		SetLogLevel(level)
	}
	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLogLevel(Debug)
	}
}

// ParseLevel maps a level name (debug, info, warn, error, critical) to its value.
func ParseLevel(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return Debug, true
	case "info":
		return Info, true
	case "warn", "warning":
		return Warning, true
	case "error":
		return Error, true
	case "critical", "fatal":
		return Critical, true
	default:
		return NotSet, false
	}
}

func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	LogLevel = level
}

func enabled(level int) bool {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	return LogLevel <= level
}

func Debugf(format string, v ...interface{}) {
	if enabled(Debug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Infof(format string, v ...interface{}) {
	if enabled(Info) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warningf(format string, v ...interface{}) {
	if enabled(Warning) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Errorf(format string, v ...interface{}) {
	if enabled(Error) {
		log.Printf("[ERROR] "+format, v...)
	}
}

func Criticalf(format string, v ...interface{}) {
	if enabled(Critical) {
		log.Printf("[CRITICAL] "+format, v...)
	}
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
