package engine

import (
	"errors"
	"fmt"
)

// ErrTokenizerConflict is returned when both a local tokenizer file and a
// remote tokenizer repository are configured.
var ErrTokenizerConflict = errors.New("cannot specify both tokenizer path and tokenizer repository")

type TokenizerKind int

const (
	// TokenizerEmbedded uses the vocabulary stored in the model file.
	TokenizerEmbedded TokenizerKind = iota
	// TokenizerFile loads a HuggingFace tokenizer.json from disk.
	TokenizerFile
	// TokenizerRemote fetches a tokenizer from a HuggingFace repository.
	TokenizerRemote
)

func (k TokenizerKind) String() string {
	switch k {
	case TokenizerEmbedded:
		return "embedded"
	case TokenizerFile:
		return "file"
	case TokenizerRemote:
		return "remote"
	default:
		return fmt.Sprintf("tokenizer(%d)", int(k))
	}
}

// TokenizerSource says where a model's tokenizer comes from. Location is the
// file path or repository name; it is empty for TokenizerEmbedded.
type TokenizerSource struct {
	Kind     TokenizerKind
	Location string
}

func (s TokenizerSource) String() string {
	if s.Location == "" {
		return s.Kind.String()
	}
	return s.Kind.String() + ":" + s.Location
}

// ResolveTokenizer picks the tokenizer source from the two optional settings.
// Setting both is a configuration error.
func ResolveTokenizer(path, repository string) (TokenizerSource, error) {
	switch {
	case path != "" && repository != "":
		return TokenizerSource{}, ErrTokenizerConflict
	case path != "":
		return TokenizerSource{Kind: TokenizerFile, Location: path}, nil
	case repository != "":
		return TokenizerSource{Kind: TokenizerRemote, Location: repository}, nil
	default:
		return TokenizerSource{Kind: TokenizerEmbedded}, nil
	}
}
