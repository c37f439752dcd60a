package config

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	red         = 31
	yellow      = 33
	blue        = 36
	gray        = 37
	green       = 32
	cyan        = 96
	lightYellow = 93
	lightGreen  = 92
)

// promotedFields lead every line in this order, the rest follow sorted.
var promotedFields = []string{"object", "incident_id", "chat_id", "user_id"}

type NbFormatter struct {
	// NoColor drops ANSI escapes, for journald and piped output.
	NoColor bool
	// NoSource omits the caller position.
	NoSource bool
}

func (f *NbFormatter) paint(color int, s string) string {
	if f.NoColor {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}

func (f *NbFormatter) pair(key string, valueColor int, value string) string {
	return " " + f.paint(cyan, key) + "=" + f.paint(valueColor, value)
}

func (f *NbFormatter) Format(entry *log.Entry) ([]byte, error) {
	levelColor := blue
	switch entry.Level {
	case log.DebugLevel, log.TraceLevel:
		levelColor = gray
	case log.WarnLevel:
		levelColor = yellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		levelColor = red
	}

	var b strings.Builder
	b.WriteString(f.paint(cyan, "level") + "=" + f.paint(levelColor, strings.ToUpper(entry.Level.String())[:4]))
	b.WriteString(f.pair("ts", lightYellow, entry.Time.Format("2006-01-02 15:04:05.000")))

	if !f.NoSource {
		if _, file, line, ok := runtime.Caller(6); ok {
			b.WriteString(f.pair("source", lightYellow, fmt.Sprintf("%s:%d", file, line)))
		}
	}

	for _, k := range fieldOrder(entry.Data) {
		s := encodeValue(entry.Data[k])
		if s == "" {
			continue
		}
		valueColor := cyan
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			valueColor = green
		} else if strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
			valueColor = lightYellow
		}
		b.WriteString(f.pair(k, valueColor, s))
	}
	b.WriteString(f.pair("msg", lightGreen, strconv.Quote(entry.Message)))

	output := strings.ReplaceAll(b.String(), "\r", "\\r")
	output = strings.ReplaceAll(output, "\n", "\\n") + "\n"
	return []byte(output), nil
}

func fieldOrder(data log.Fields) []string {
	keys := make([]string, 0, len(data))
	for _, k := range promotedFields {
		if _, ok := data[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(data))
	for k := range data {
		if !isPromoted(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func isPromoted(key string) bool {
	for _, k := range promotedFields {
		if k == key {
			return true
		}
	}
	return false
}

func encodeValue(val any) string {
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	m, err := json.Marshal(val)
	if err != nil {
		return ""
	}
	return string(m)
}
