package gcode

import (
	"testing"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/stretchr/testify/assert"
)

func TestVM_Run_Absolute(t *testing.T) {
	vm := NewVM()

	err := vm.Run(MustParseCommands("G1X10Y5Z2")[0])
	assert.NoError(t, err)
	assert.Equal(t, coord.Point{X: 10, Y: 5, Z: 2}, vm.MPos())
}

func TestVM_Run_Relative(t *testing.T) {
	vm := NewVM()

	assert.NoError(t, vm.Run(MustParseCommands("G91")[0]))
	assert.True(t, vm.RelativeMotion())

	assert.NoError(t, vm.Run(MustParseCommands("G1X10")[0]))
	assert.NoError(t, vm.Run(MustParseCommands("G1X10")[0]))
	assert.Equal(t, 20.0, vm.MPos().X)
}

func TestVM_Run_Inches(t *testing.T) {
	vm := NewVM()

	assert.NoError(t, vm.Run(MustParseCommands("G20")[0]))
	assert.True(t, vm.Inches())

	assert.NoError(t, vm.Run(MustParseCommands("G1X1")[0]))
	assert.Equal(t, 25.4, vm.MPos().X)
}

func TestVM_Run_Feed(t *testing.T) {
	vm := NewVM()

	assert.NoError(t, vm.Run(MustParseCommands("G1F500X10")[0]))
	assert.Equal(t, 500.0, vm.Feed())
}

func TestVM_Run_UnsupportedRejected(t *testing.T) {
	vm := NewVM()
	err := vm.Run(Command{{W: 'G', Arg: 17}})
	assert.Error(t, err)
}

func TestVM_Run_ArcSupported(t *testing.T) {
	vm := NewVM()
	err := vm.Run(MustParseCommands("G2X10Y10I5J0")[0])
	assert.NoError(t, err)
}

func TestVM_Run_ProbeSupported(t *testing.T) {
	vm := NewVM()
	err := vm.Run(MustParseCommands("G38.2Z-10F100")[0])
	assert.NoError(t, err)
}
