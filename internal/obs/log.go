package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// The service logs newline-delimited JSON to stdout. Collectors parse each
// line as a standalone object, so the logger carries no prefix and no flags.
var logger = sync.OnceValue(func() *log.Logger {
	return log.New(os.Stdout, "", 0)
})

// Logger returns the process-wide line logger.
func Logger() *log.Logger { return logger() }

// LogRequest writes one JSON object with the given request fields. A field
// set that cannot marshal is reported in place of the entry, not dropped.
func LogRequest(fields map[string]any) {
	line, err := json.Marshal(fields)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"unloggable entry","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(line))
}
