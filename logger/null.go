package logger

// Null discards everything.
type Null struct{}

func (Null) Debug(string, ...any) {}
func (Null) Info(string, ...any)  {}
func (Null) Error(string, ...any) {}
