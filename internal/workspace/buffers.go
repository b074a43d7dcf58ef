package workspace

import "sync"

// Buffers tracks the documents currently open in connected editors together
// with their live text. The registry survives tracking stop/start so a
// restarted observer can rebuild its content cache from open documents.
type Buffers struct {
	mu   sync.RWMutex
	docs map[string]string
}

// NewBuffers returns an empty registry.
func NewBuffers() *Buffers {
	return &Buffers{docs: make(map[string]string)}
}

// Set records the live text of an open document.
func (b *Buffers) Set(path, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[path] = text
}

// Remove drops a document, typically when the editor closes it.
func (b *Buffers) Remove(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docs, path)
}

// Get returns the live text of an open document.
func (b *Buffers) Get(path string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.docs[path]
	return text, ok
}

// All returns a copy of the registry.
func (b *Buffers) All() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.docs))
	for path, text := range b.docs {
		out[path] = text
	}
	return out
}

// Len reports the number of open documents.
func (b *Buffers) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}
