package graph

import (
	"testing"

	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/stretchr/testify/require"
)

func buildSimpleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	b := NewBuilder()
	b.AddNode(models.NavigationNode{ID: "n1", Building: "default", Floor: 1, X: 0, Y: 0})
	b.AddNode(models.NavigationNode{ID: "n2", Building: "default", Floor: 1, X: 10, Y: 0})
	b.AddEdge(models.NavigationEdge{ID: "e1", Building: "default", FromNodeID: "n1", ToNodeID: "n2", DistanceMeters: 10})
	snap, err := b.Build(1)
	require.NoError(t, err)
	return snap
}

func TestBuilder_RejectsDanglingEdge(t *testing.T) {
	b := NewBuilder()
	b.AddNode(models.NavigationNode{ID: "n1", Building: "default", Floor: 1})
	b.AddEdge(models.NavigationEdge{ID: "e1", Building: "default", FromNodeID: "n1", ToNodeID: "ghost", DistanceMeters: 1})
	_, err := b.Build(1)
	require.Error(t, err)
}

func TestBuilder_RejectsDuplicateNode(t *testing.T) {
	b := NewBuilder()
	b.AddNode(models.NavigationNode{ID: "n1", Building: "default"})
	b.AddNode(models.NavigationNode{ID: "n1", Building: "default"})
	_, err := b.Build(1)
	require.Error(t, err)
}

func TestStore_PublishIsAtomicAndVersioned(t *testing.T) {
	store := NewStore()
	require.Equal(t, uint64(0), store.Current().Version)

	snap := buildSimpleSnapshot(t)
	store.Publish(snap)

	require.Equal(t, uint64(1), store.Current().Version)
	require.Len(t, store.Current().Nodes, 2)
}

func TestSnapshot_NeighborEdges(t *testing.T) {
	snap := buildSimpleSnapshot(t)
	edges := snap.NeighborEdges("n1")
	require.Len(t, edges, 1)
	require.Equal(t, "n2", edges[0].ToNodeID)
}

func TestSnapshot_NearestNode(t *testing.T) {
	snap := buildSimpleSnapshot(t)

	node, err := snap.NearestNode(models.Position{Building: "default", Floor: 1, X: 1, Y: 0}, 5)
	require.NoError(t, err)
	require.Equal(t, "n1", node.ID)

	_, err = snap.NearestNode(models.Position{Building: "default", Floor: 1, X: 1000, Y: 1000}, 5)
	require.Error(t, err)
}
