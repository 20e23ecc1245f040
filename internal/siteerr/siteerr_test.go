package siteerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesKindAndPath(t *testing.T) {
	err := New(KindParse, "blog/post.md", "malformed front matter")
	require.Contains(t, err.Error(), "parse")
	require.Contains(t, err.Error(), "blog/post.md")
	require.Contains(t, err.Error(), "malformed front matter")
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("unexpected byte")
	err := Wrap(cause, KindEncoding, "notes/x.md", "not valid UTF-8")
	require.ErrorIs(t, err, cause)
	require.Equal(t, KindEncoding, KindOf(err))
}

func TestIsFatal_Classification(t *testing.T) {
	require.False(t, IsFatal(New(KindRender, "a.md", "unresolved variable")))
	require.True(t, IsFatal(Structural(KindCycle, "a.md", "cycle detected")))
	require.True(t, IsFatal(errors.New("plain")), "unknown errors default to fatal")
	require.False(t, IsFatal(nil))
}

func TestKindOf_WrappedChain(t *testing.T) {
	inner := Structural(KindIO, "public", "swap failed")
	outer := fmt.Errorf("publish: %w", inner)
	require.Equal(t, KindIO, KindOf(outer))
	require.True(t, IsKind(outer, KindIO))
	require.True(t, IsFatal(outer))
}
