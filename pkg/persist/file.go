package persist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Path returns the file a codec uses for basename inside dir.
func Path(dir, basename string, codec Codec) string {
	return filepath.Join(dir, basename+codec.Extension())
}

// SaveState encodes state into dir. The file is written to a temporary name
// first and renamed, so a failed save never truncates the previous log.
func SaveState(dir, basename string, codec Codec, state any) error {
	path := Path(dir, basename, codec)

	tmp, err := os.CreateTemp(dir, basename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	tmpName := tmp.Name()

	err = codec.Encode(tmp, state)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("encode state: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("close state file: %w", err)
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// LoadState decodes state from dir. state must be a pointer.
func LoadState(dir, basename string, codec Codec, state any) error {
	file, err := os.Open(Path(dir, basename, codec))
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}

// PlainJSON returns the uncompressed JSON document stored for basename.
// ok is false when the codec does not produce JSON.
func PlainJSON(dir, basename string, codec Codec) (data []byte, ok bool, err error) {
	var plain func(io.Reader) io.Reader

	switch c := codec.(type) {
	case *JSONCodec:
		plain = func(r io.Reader) io.Reader { return r }
	case *LZ4Codec:
		if _, isJSON := c.Inner.(*JSONCodec); !isJSON {
			return nil, false, nil
		}

		plain = c.Plain
	default:
		return nil, false, nil
	}

	file, err := os.Open(Path(dir, basename, codec))
	if err != nil {
		return nil, true, fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	data, err = io.ReadAll(plain(file))
	if err != nil {
		return nil, true, fmt.Errorf("read state file: %w", err)
	}

	return data, true, nil
}
