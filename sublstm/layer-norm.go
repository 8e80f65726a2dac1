package sublstm

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// Scopes holding the learned scale/shift of the three normalization
// transforms of the normalized cells.
const (
	normInputScope  = "norm_i"
	normHiddenScope = "norm_h"
	normCellScope   = "norm_c"
)

// layerNorm standardizes x over its feature (last) axis and reapplies a
// learned scale and shift, with the scale/shift variables on the given scope.
func layerNorm(ctx *context.Context, x *Node) *Node {
	return layers.LayerNormalization(ctx, x, -1).Done()
}

// NormalizedCell is the four-gate rule of BasicCell with layer normalization
// in place of the learned biases: the input-side and hidden-side projections
// each pass through an independent normalization before being summed, and the
// combined cell state is normalized by a third transform before the tanh.
//
//	igates = Norm_i(x·Wih^T)
//	hgates = Norm_h(h·Whh^T)
//	i, f, g, o = sigmoid(igates + hgates), split into four slices
//	c' = Norm_c(f*c + (g - i))
//	h' = tanh(c') - o
//
// The normalization's learnable shift subsumes the role of an additive bias,
// so no explicit bias_ih/bias_hh parameters exist on this cell.
type NormalizedCell struct {
	ctx                   *context.Context
	inputSize, hiddenSize int
}

// NewNormalizedCell creates a normalized four-gate cell. The weight variables
// weight_ih [4*hidden, input] and weight_hh [4*hidden, hidden] and the three
// normalization transforms (scopes norm_i, norm_h over [4*hidden] features,
// norm_c over [hidden]) all live on the given context scope.
func NewNormalizedCell(ctx *context.Context, inputSize, hiddenSize int) *NormalizedCell {
	return &NormalizedCell{ctx: ctx, inputSize: inputSize, hiddenSize: hiddenSize}
}

// InputSize returns the expected width of the input vectors.
func (c *NormalizedCell) InputSize() int { return c.inputSize }

// HiddenSize returns the width of the hidden and cell state vectors.
func (c *NormalizedCell) HiddenSize() int { return c.hiddenSize }

func (c *NormalizedCell) params(x *Node) (weightIH, weightHH *Node) {
	g := x.Graph()
	dtype := x.DType()
	weightIH = c.ctx.VariableWithShape(weightIHName, shapes.Make(dtype, basicGates*c.hiddenSize, c.inputSize)).ValueGraph(g)
	weightHH = c.ctx.VariableWithShape(weightHHName, shapes.Make(dtype, basicGates*c.hiddenSize, c.hiddenSize)).ValueGraph(g)
	return
}

// Step applies one timestep. x is [batch, inputSize]; the returned output and
// the new state's Hidden are the same [batch, hiddenSize] node.
func (c *NormalizedCell) Step(x *Node, state State) (*Node, State) {
	weightIH, weightHH := c.params(x)
	igates := layerNorm(c.ctx.In(normInputScope), Einsum("bi,gi->bg", x, weightIH))
	hgates := layerNorm(c.ctx.In(normHiddenScope), Einsum("bh,gh->bg", state.Hidden, weightHH))
	gates := Sigmoid(Add(igates, hgates))
	ingate, forgetgate, cellgate, outgate := split4(gates, c.hiddenSize)

	cy := layerNorm(c.ctx.In(normCellScope), Add(Mul(forgetgate, state.Cell), Sub(cellgate, ingate)))
	hy := Sub(Tanh(cy), outgate)
	return hy, State{Hidden: hy, Cell: cy}
}

// NormalizedFixedForgetCell combines the normalization strategy of
// NormalizedCell with the standalone forget vector of FixedForgetCell:
// three-gate normalized projections without bias parameters, a learned
// forget_gate [hidden] vector sigmoided at use time, and a normalized cell
// state.
type NormalizedFixedForgetCell struct {
	ctx                   *context.Context
	inputSize, hiddenSize int
}

// NewNormalizedFixedForgetCell creates a normalized three-gate cell with a
// fixed forget vector. Variables weight_ih [3*hidden, input], weight_hh
// [3*hidden, hidden] and forget_gate [hidden], plus the norm_i/norm_h/norm_c
// transforms, all live on the given context scope.
func NewNormalizedFixedForgetCell(ctx *context.Context, inputSize, hiddenSize int) *NormalizedFixedForgetCell {
	return &NormalizedFixedForgetCell{ctx: ctx, inputSize: inputSize, hiddenSize: hiddenSize}
}

// InputSize returns the expected width of the input vectors.
func (c *NormalizedFixedForgetCell) InputSize() int { return c.inputSize }

// HiddenSize returns the width of the hidden and cell state vectors.
func (c *NormalizedFixedForgetCell) HiddenSize() int { return c.hiddenSize }

func (c *NormalizedFixedForgetCell) params(x *Node) (weightIH, weightHH, forgetGate *Node) {
	g := x.Graph()
	dtype := x.DType()
	weightIH = c.ctx.VariableWithShape(weightIHName, shapes.Make(dtype, fixedGates*c.hiddenSize, c.inputSize)).ValueGraph(g)
	weightHH = c.ctx.VariableWithShape(weightHHName, shapes.Make(dtype, fixedGates*c.hiddenSize, c.hiddenSize)).ValueGraph(g)
	forgetGate = c.ctx.VariableWithShape(forgetGateName, shapes.Make(dtype, c.hiddenSize)).ValueGraph(g)
	return
}

// Step applies one timestep. x is [batch, inputSize]; the returned output and
// the new state's Hidden are the same [batch, hiddenSize] node.
func (c *NormalizedFixedForgetCell) Step(x *Node, state State) (*Node, State) {
	weightIH, weightHH, forgetGate := c.params(x)
	igates := layerNorm(c.ctx.In(normInputScope), Einsum("bi,gi->bg", x, weightIH))
	hgates := layerNorm(c.ctx.In(normHiddenScope), Einsum("bh,gh->bg", state.Hidden, weightHH))
	gates := Sigmoid(Add(igates, hgates))
	ingate, cellgate, outgate := split3(gates, c.hiddenSize)

	forget := ExpandAxes(Sigmoid(forgetGate), 0) // [1, hidden], broadcast over the batch.
	cy := layerNorm(c.ctx.In(normCellScope), Add(Mul(forget, state.Cell), Sub(cellgate, ingate)))
	hy := Sub(Tanh(cy), outgate)
	return hy, State{Hidden: hy, Cell: cy}
}
