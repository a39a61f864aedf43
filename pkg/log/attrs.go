package log

import (
	"fmt"
	"log/slog"
	"time"
)

func EngineID[T ~string](id T) slog.Attr {
	return slog.String("engine_id", string(id))
}

func FiberID(id int64) slog.Attr {
	return slog.Int64("fiber_id", id)
}

func ParentID(id int64) slog.Attr {
	return slog.Int64("parent_id", id)
}

func Step[T ~string](name T) slog.Attr {
	return slog.String("step", string(name))
}

func Action(kind fmt.Stringer) slog.Attr {
	return slog.String("action", kind.String())
}

func TaskType[T ~string](typ T) slog.Attr {
	return slog.String("task_type", string(typ))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Delay(d time.Duration) slog.Attr {
	return slog.Duration("delay", d)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
