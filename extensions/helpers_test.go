package extensions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	cells "github.com/pumped-fn/cells-go"
)

var errBoom = errors.New("boom")

// diamond builds a -> {b, c} -> d. The node named fail returns errBoom.
func diamond(t *testing.T, fail string) *cells.Graph {
	t.Helper()

	g := cells.NewGraph(cells.WithGraphName("diamond"))
	nodes := map[string]*cells.Node{}
	for _, name := range []string{"a", "b", "c", "d"} {
		name := name
		nodes[name] = cells.NewNode(name, func(ctx context.Context) error {
			if name == fail {
				return errBoom
			}
			return nil
		})
	}
	require.NoError(t, g.AddPrecedence(nodes["a"], nodes["b"]))
	require.NoError(t, g.AddPrecedence(nodes["a"], nodes["c"]))
	require.NoError(t, g.AddPrecedence(nodes["b"], nodes["d"]))
	require.NoError(t, g.AddPrecedence(nodes["c"], nodes["d"]))
	return g
}
