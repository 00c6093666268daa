package loader

// SetBeforeParse installs a hook run at the start of every pass.
func (l *Loader) SetBeforeParse(fn func(seq uint64)) {
	l.beforeParse = fn
}

// Deliver passes ev to the registered listeners as a finished pass would.
func (l *Loader) Deliver(ev Event) {
	l.mu.Lock()
	listeners := l.listeners
	l.mu.Unlock()
	l.notify(listeners, ev)
}
