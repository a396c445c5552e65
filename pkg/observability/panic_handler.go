package observability

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers a panic in the calling goroutine, logs it with its stack and then
// runs onPanic. It must be deferred directly.
//
//	defer observability.RecoverPanic(log, "approve user", func(v interface{}) {
//		http.Error(w, "internal error", http.StatusInternalServerError)
//	})
func RecoverPanic(log logrus.FieldLogger, where string, onPanic func(v interface{})) {
	if r := recover(); r != nil {
		log.WithFields(logrus.Fields{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("PANIC recovered")
		if onPanic != nil {
			onPanic(r)
		}
	}
}
