package sublstm

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Variable names used for the cell parameters. PrefusedCell resolves the same
// hidden-side names as BasicCell, so a PrefusedCell built on the same context
// scope as a BasicCell shares the hidden-side parameters.
const (
	weightIHName   = "weight_ih"
	weightHHName   = "weight_hh"
	biasIHName     = "bias_ih"
	biasHHName     = "bias_hh"
	forgetGateName = "forget_gate"
	basicGates     = 4
	fixedGates     = 3
)

// BasicCell implements the four-gate subtractive update rule with learned
// biases on both projections.
//
// One step computes, for input x [batch, inputSize] and state (h, c):
//
//	gates = sigmoid(x·Wih^T + bias_ih + h·Whh^T + bias_hh)  // [batch, 4*hidden]
//	i, f, g, o = gates, split into four equal slices
//	c' = f*c + (g - i)
//	h' = tanh(c') - o
//
// Unlike a standard LSTM there is no multiplicative candidate: the input
// contribution to the cell state is the difference g - i, and the output gate
// is subtracted from tanh(c') rather than multiplied into it.
type BasicCell struct {
	ctx                   *context.Context
	inputSize, hiddenSize int

	// Model weights, set only by NewBasicCellFromWeights.
	weightIH, weightHH, biasIH, biasHH *Node
}

// NewBasicCell creates a four-gate cell whose parameters live on the given
// context scope: weight_ih [4*hidden, input], weight_hh [4*hidden, hidden],
// bias_ih and bias_hh [4*hidden]. Variables are created at first use and
// reused across graph builds; the context's initializer determines the
// starting values (the reference scheme is a standard normal draw, e.g.
// initializers.RandomNormalFn). Train or load the variables afterward for
// useful behavior.
func NewBasicCell(ctx *context.Context, inputSize, hiddenSize int) *BasicCell {
	return &BasicCell{ctx: ctx, inputSize: inputSize, hiddenSize: hiddenSize}
}

// NewBasicCellFromWeights creates a four-gate cell over already-built graph
// nodes -- constants or externally trained parameters -- instead of context
// variables. Shapes: weightIH [4*hidden, input], weightHH [4*hidden, hidden],
// biasIH and biasHH [4*hidden]. The cell is tied to the nodes' graph.
func NewBasicCellFromWeights(weightIH, weightHH, biasIH, biasHH *Node) *BasicCell {
	hiddenSize := weightHH.Shape().Dim(1)
	inputSize := weightIH.Shape().Dim(1)
	weightIH.AssertDims(basicGates*hiddenSize, inputSize)
	weightHH.AssertDims(basicGates*hiddenSize, hiddenSize)
	biasIH.AssertDims(basicGates * hiddenSize)
	biasHH.AssertDims(basicGates * hiddenSize)
	return &BasicCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		weightIH:   weightIH,
		weightHH:   weightHH,
		biasIH:     biasIH,
		biasHH:     biasHH,
	}
}

// InputSize returns the expected width of the input vectors.
func (c *BasicCell) InputSize() int { return c.inputSize }

// HiddenSize returns the width of the hidden and cell state vectors.
func (c *BasicCell) HiddenSize() int { return c.hiddenSize }

// params returns the four parameter nodes for the graph x belongs to,
// creating or reusing context variables unless the cell was built from
// explicit weight nodes.
func (c *BasicCell) params(x *Node) (weightIH, weightHH, biasIH, biasHH *Node) {
	if c.weightIH != nil {
		return c.weightIH, c.weightHH, c.biasIH, c.biasHH
	}
	g := x.Graph()
	dtype := x.DType()
	weightIH = c.ctx.VariableWithShape(weightIHName, shapes.Make(dtype, basicGates*c.hiddenSize, c.inputSize)).ValueGraph(g)
	weightHH = c.ctx.VariableWithShape(weightHHName, shapes.Make(dtype, basicGates*c.hiddenSize, c.hiddenSize)).ValueGraph(g)
	biasIH = c.ctx.VariableWithShape(biasIHName, shapes.Make(dtype, basicGates*c.hiddenSize)).ValueGraph(g)
	biasHH = c.ctx.VariableWithShape(biasHHName, shapes.Make(dtype, basicGates*c.hiddenSize)).ValueGraph(g)
	return
}

// InputProjection computes the input-side half of the gate pre-activation,
// x·Wih^T + bias_ih. x is either one step [batch, inputSize] or a whole
// sequence [batch, steps, inputSize]: the projection does not depend on the
// recurrent state, so a sequence can be projected with a single fused matmul
// before the timestep loop and its per-step slices fed to a PrefusedCell.
func (c *BasicCell) InputProjection(x *Node) *Node {
	weightIH, _, biasIH, _ := c.params(x)
	if x.Rank() == 3 {
		return addBias(Einsum("bsi,gi->bsg", x, weightIH), biasIH)
	}
	return addBias(Einsum("bi,gi->bg", x, weightIH), biasIH)
}

// Step applies one timestep. x is [batch, inputSize]; the returned output and
// the new state's Hidden are the same [batch, hiddenSize] node.
//
// No shape validation is performed here: malformed arguments surface as the
// graph engine's own dimension-mismatch failures.
func (c *BasicCell) Step(x *Node, state State) (*Node, State) {
	weightIH, weightHH, biasIH, biasHH := c.params(x)
	igates := addBias(Einsum("bi,gi->bg", x, weightIH), biasIH)
	hgates := addBias(Einsum("bh,gh->bg", state.Hidden, weightHH), biasHH)
	gates := Sigmoid(Add(igates, hgates))
	ingate, forgetgate, cellgate, outgate := split4(gates, c.hiddenSize)

	cy := Add(Mul(forgetgate, state.Cell), Sub(cellgate, ingate))
	hy := Sub(Tanh(cy), outgate)
	return hy, State{Hidden: hy, Cell: cy}
}

// addBias broadcasts a [features] bias over a [batch, features] or
// [batch, steps, features] projection.
func addBias(proj, bias *Node) *Node {
	for bias.Rank() < proj.Rank() {
		bias = ExpandAxes(bias, 0)
	}
	return Add(proj, bias)
}

// splitGates slices a fused [batch, numGates*hidden] gate tensor into
// numGates equal [batch, hidden] slices along the feature axis. Gate order is
// fixed: (input, forget, cell, output) for four gates, (input, cell, output)
// for three.
func splitGates(gates *Node, hiddenSize, numGates int) []*Node {
	out := make([]*Node, numGates)
	for k := range out {
		out[k] = Slice(gates, AxisRange(), AxisRange(k*hiddenSize, (k+1)*hiddenSize))
	}
	return out
}

func split4(gates *Node, hiddenSize int) (ingate, forgetgate, cellgate, outgate *Node) {
	s := splitGates(gates, hiddenSize, basicGates)
	return s[0], s[1], s[2], s[3]
}

func split3(gates *Node, hiddenSize int) (ingate, cellgate, outgate *Node) {
	s := splitGates(gates, hiddenSize, fixedGates)
	return s[0], s[1], s[2]
}
