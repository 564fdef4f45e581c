package logging

type discard struct{}

// Discard drops every message. Fatalf does not run a handler.
var Discard Logger = discard{}

func (discard) Errorf(string, ...any) {}
func (discard) Warnf(string, ...any)  {}
func (discard) Infof(string, ...any)  {}
func (discard) Debugf(string, ...any) {}
func (discard) Fatalf(string, ...any) {}
