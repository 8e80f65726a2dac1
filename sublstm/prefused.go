package sublstm

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// PrefusedCell is the four-gate rule of BasicCell with the input-side
// projection supplied by the caller: Step takes x·Wih^T (+ input bias)
// already computed, shaped [batch, 4*hiddenSize], instead of a raw input.
// The cell owns only the hidden-side weight and bias.
//
// The input projection of every timestep is independent of the recurrent
// state, so in an unrolled sequence it can be computed for all steps with one
// large matmul before the loop -- see BasicCell.InputProjection. Given the
// same weights, PrefusedCell and BasicCell produce bit-identical results.
//
// PrefusedCell resolves the weight_hh/bias_hh variable names, so building it
// on the same context scope as a BasicCell shares those parameters with it.
type PrefusedCell struct {
	ctx        *context.Context
	hiddenSize int

	weightHH, biasHH *Node
}

// NewPrefusedCell creates a prefused four-gate cell with context variables
// weight_hh [4*hidden, hidden] and bias_hh [4*hidden] on the given scope.
func NewPrefusedCell(ctx *context.Context, hiddenSize int) *PrefusedCell {
	return &PrefusedCell{ctx: ctx, hiddenSize: hiddenSize}
}

// NewPrefusedCellFromWeights creates a prefused cell over already-built
// hidden-side nodes: weightHH [4*hidden, hidden], biasHH [4*hidden].
func NewPrefusedCellFromWeights(weightHH, biasHH *Node) *PrefusedCell {
	hiddenSize := weightHH.Shape().Dim(1)
	weightHH.AssertDims(basicGates*hiddenSize, hiddenSize)
	biasHH.AssertDims(basicGates * hiddenSize)
	return &PrefusedCell{hiddenSize: hiddenSize, weightHH: weightHH, biasHH: biasHH}
}

// HiddenSize returns the width of the hidden and cell state vectors.
func (c *PrefusedCell) HiddenSize() int { return c.hiddenSize }

func (c *PrefusedCell) params(x *Node) (weightHH, biasHH *Node) {
	if c.weightHH != nil {
		return c.weightHH, c.biasHH
	}
	g := x.Graph()
	dtype := x.DType()
	weightHH = c.ctx.VariableWithShape(weightHHName, shapes.Make(dtype, basicGates*c.hiddenSize, c.hiddenSize)).ValueGraph(g)
	biasHH = c.ctx.VariableWithShape(biasHHName, shapes.Make(dtype, basicGates*c.hiddenSize)).ValueGraph(g)
	return
}

// Step applies one timestep. premulInput is the precomputed input projection
// x·Wih^T + bias_ih, shaped [batch, 4*hiddenSize]. The returned output and
// the new state's Hidden are the same [batch, hiddenSize] node.
func (c *PrefusedCell) Step(premulInput *Node, state State) (*Node, State) {
	weightHH, biasHH := c.params(premulInput)
	hgates := addBias(Einsum("bh,gh->bg", state.Hidden, weightHH), biasHH)
	gates := Sigmoid(Add(premulInput, hgates))
	ingate, forgetgate, cellgate, outgate := split4(gates, c.hiddenSize)

	cy := Add(Mul(forgetgate, state.Cell), Sub(cellgate, ingate))
	hy := Sub(Tanh(cy), outgate)
	return hy, State{Hidden: hy, Cell: cy}
}
