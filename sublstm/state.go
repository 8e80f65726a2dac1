package sublstm

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// State bundles the recurrent state pair threaded across timesteps.
// Hidden and Cell are always produced together and consumed together; both
// are shaped [batchSize, hiddenSize]. Every cell in this package also returns
// its step output as the Hidden slot of the new state -- callers must not
// assume the two ever diverge.
type State struct {
	Hidden *Node
	Cell   *Node
}

// ZeroState returns an all-zero state pair for the first timestep, matching
// the batch size and dtype of x. x is any node shaped [batchSize, ...],
// typically the first step's input.
func ZeroState(x *Node, hiddenSize int) State {
	g := x.Graph()
	zeros := Zeros(g, shapes.Make(x.DType(), x.Shape().Dim(0), hiddenSize))
	return State{Hidden: zeros, Cell: zeros}
}
