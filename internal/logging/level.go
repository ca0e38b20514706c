package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LogLevel is a logging severity.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if l < DEBUG || l > FATAL {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// LogField is a single structured key/value pair.
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a LogField.
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

var (
	packageLogLevels = map[string]LogLevel{}
	packageLogMutex  sync.RWMutex
)

// SetPackageLogLevels replaces the per-package level overrides.
// Keys are package names ("lifecycle") or prefix patterns ("integration.*").
func SetPackageLogLevels(levels map[string]string) error {
	parsed := make(map[string]LogLevel, len(levels))
	for pkg, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
		parsed[pkg] = level
	}

	packageLogMutex.Lock()
	packageLogLevels = parsed
	packageLogMutex.Unlock()
	return nil
}

// GetPackageLogLevel returns the override for packageName, or -1 when none
// applies. Exact matches win; otherwise the longest matching pattern wins.
func GetPackageLogLevel(packageName string) LogLevel {
	packageLogMutex.RLock()
	defer packageLogMutex.RUnlock()

	if level, ok := packageLogLevels[packageName]; ok {
		return level
	}

	var patterns []string
	for pattern := range packageLogLevels {
		if matchesPattern(packageName, pattern) {
			patterns = append(patterns, pattern)
		}
	}
	if len(patterns) == 0 {
		return LogLevel(-1)
	}
	sort.Slice(patterns, func(i, j int) bool { return len(patterns[i]) > len(patterns[j]) })
	return packageLogLevels[patterns[0]]
}

// matchesPattern reports whether packageName matches pattern. "a.*" matches
// "a.b" and "a.b.c" but not "a" itself.
func matchesPattern(packageName, pattern string) bool {
	if packageName == pattern {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(packageName, prefix+".")
	}
	return false
}

// ValidateLevel reports whether levelStr names a known level.
func ValidateLevel(levelStr string) error {
	_, err := parseLevel(levelStr)
	return err
}

func parseLevel(levelStr string) (LogLevel, error) {
	upper := strings.ToUpper(strings.TrimSpace(levelStr))
	for i, name := range levelNames {
		if upper == name {
			return LogLevel(i), nil
		}
	}
	return -1, fmt.Errorf("invalid level: %s (must be one of: debug, info, warn, error, fatal)", levelStr)
}
