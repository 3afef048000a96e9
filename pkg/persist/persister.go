package persist

// Persister saves and loads one state type under a fixed basename.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister creates a persister with the given basename and codec.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{
		basename: basename,
		codec:    codec,
	}
}

// Codec returns the codec in use.
func (p *Persister[T]) Codec() Codec { return p.codec }

// Path returns the file the persister reads and writes inside dir.
func (p *Persister[T]) Path(dir string) string {
	return Path(dir, p.basename, p.codec)
}

// Save writes the state produced by build.
func (p *Persister[T]) Save(dir string, build func() *T) error {
	return SaveState(dir, p.basename, p.codec, build())
}

// Load decodes the stored state and hands it to restore. restore is not
// called when decoding fails.
func (p *Persister[T]) Load(dir string, restore func(*T) error) error {
	var state T

	err := LoadState(dir, p.basename, p.codec, &state)
	if err != nil {
		return err
	}

	return restore(&state)
}

// PlainJSON returns the stored document as JSON, if the codec is JSON based.
func (p *Persister[T]) PlainJSON(dir string) ([]byte, bool, error) {
	return PlainJSON(dir, p.basename, p.codec)
}
