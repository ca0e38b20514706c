package logging

import (
	"log"
	"strings"
	"testing"
)

func TestRedirectStdLog(t *testing.T) {
	resetGlobalLogger()
	_ = Initialize("info")

	prevWriter, prevFlags, prevPrefix := log.Writer(), log.Flags(), log.Prefix()
	defer func() {
		log.SetOutput(prevWriter)
		log.SetFlags(prevFlags)
		log.SetPrefix(prevPrefix)
	}()

	out, _ := captureOutput(t, func() {
		RedirectStdLog()
		RedirectStdLog()
		log.Printf("from %s", "library")
	})

	if !strings.Contains(out, "[INFO] stdlog: from library\n") {
		t.Errorf("standard log output not redirected:\n%s", out)
	}
	if strings.Count(out, "from library") != 1 {
		t.Errorf("expected exactly one line:\n%s", out)
	}
}
