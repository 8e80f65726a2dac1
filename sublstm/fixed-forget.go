package sublstm

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// FixedForgetCell is the three-gate variant: the fused projection produces
// only the input, cell and output gates, and the forget gate is a standalone
// learned vector fg [hiddenSize], identical across the batch and every
// timestep.
//
//	gates = sigmoid(x·Wih^T + bias_ih + h·Whh^T + bias_hh)  // [batch, 3*hidden]
//	i, g, o = gates, split into three equal slices
//	c' = sigmoid(fg)*c + (g - i)
//	h' = tanh(c') - o
//
// The sigmoid of fg is applied at use time, never precomputed, so the decay
// always reflects the current learned value. Decoupling the forget signal
// from the current input and hidden state gives a cheaper, input-independent
// memory-decay schedule.
type FixedForgetCell struct {
	ctx                   *context.Context
	inputSize, hiddenSize int

	weightIH, weightHH, biasIH, biasHH, forgetGate *Node
}

// NewFixedForgetCell creates a three-gate cell with context variables
// weight_ih [3*hidden, input], weight_hh [3*hidden, hidden], bias_ih and
// bias_hh [3*hidden], and forget_gate [hidden] on the given scope.
func NewFixedForgetCell(ctx *context.Context, inputSize, hiddenSize int) *FixedForgetCell {
	return &FixedForgetCell{ctx: ctx, inputSize: inputSize, hiddenSize: hiddenSize}
}

// NewFixedForgetCellFromWeights creates a three-gate cell over already-built
// graph nodes. Shapes: weightIH [3*hidden, input], weightHH
// [3*hidden, hidden], biasIH and biasHH [3*hidden], forgetGate [hidden].
func NewFixedForgetCellFromWeights(weightIH, weightHH, biasIH, biasHH, forgetGate *Node) *FixedForgetCell {
	hiddenSize := weightHH.Shape().Dim(1)
	inputSize := weightIH.Shape().Dim(1)
	weightIH.AssertDims(fixedGates*hiddenSize, inputSize)
	weightHH.AssertDims(fixedGates*hiddenSize, hiddenSize)
	biasIH.AssertDims(fixedGates * hiddenSize)
	biasHH.AssertDims(fixedGates * hiddenSize)
	forgetGate.AssertDims(hiddenSize)
	return &FixedForgetCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		weightIH:   weightIH,
		weightHH:   weightHH,
		biasIH:     biasIH,
		biasHH:     biasHH,
		forgetGate: forgetGate,
	}
}

// InputSize returns the expected width of the input vectors.
func (c *FixedForgetCell) InputSize() int { return c.inputSize }

// HiddenSize returns the width of the hidden and cell state vectors.
func (c *FixedForgetCell) HiddenSize() int { return c.hiddenSize }

func (c *FixedForgetCell) params(x *Node) (weightIH, weightHH, biasIH, biasHH, forgetGate *Node) {
	if c.weightIH != nil {
		return c.weightIH, c.weightHH, c.biasIH, c.biasHH, c.forgetGate
	}
	g := x.Graph()
	dtype := x.DType()
	weightIH = c.ctx.VariableWithShape(weightIHName, shapes.Make(dtype, fixedGates*c.hiddenSize, c.inputSize)).ValueGraph(g)
	weightHH = c.ctx.VariableWithShape(weightHHName, shapes.Make(dtype, fixedGates*c.hiddenSize, c.hiddenSize)).ValueGraph(g)
	biasIH = c.ctx.VariableWithShape(biasIHName, shapes.Make(dtype, fixedGates*c.hiddenSize)).ValueGraph(g)
	biasHH = c.ctx.VariableWithShape(biasHHName, shapes.Make(dtype, fixedGates*c.hiddenSize)).ValueGraph(g)
	forgetGate = c.ctx.VariableWithShape(forgetGateName, shapes.Make(dtype, c.hiddenSize)).ValueGraph(g)
	return
}

// Step applies one timestep. x is [batch, inputSize]; the returned output and
// the new state's Hidden are the same [batch, hiddenSize] node.
func (c *FixedForgetCell) Step(x *Node, state State) (*Node, State) {
	weightIH, weightHH, biasIH, biasHH, forgetGate := c.params(x)
	igates := addBias(Einsum("bi,gi->bg", x, weightIH), biasIH)
	hgates := addBias(Einsum("bh,gh->bg", state.Hidden, weightHH), biasHH)
	gates := Sigmoid(Add(igates, hgates))
	ingate, cellgate, outgate := split3(gates, c.hiddenSize)

	forget := ExpandAxes(Sigmoid(forgetGate), 0) // [1, hidden], broadcast over the batch.
	cy := Add(Mul(forget, state.Cell), Sub(cellgate, ingate))
	hy := Sub(Tanh(cy), outgate)
	return hy, State{Hidden: hy, Cell: cy}
}
