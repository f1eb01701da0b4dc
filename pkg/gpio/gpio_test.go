package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingDriver struct {
	enter, exit int
}

func (d *countingDriver) ConfigureOutput(Pin) error { return nil }
func (d *countingDriver) ConfigureInput(Pin) error { return nil }
func (d *countingDriver) Write(Pin, Level) {}
func (d *countingDriver) Read(Pin) Level { return Low }
func (d *countingDriver) DelayMicroseconds(uint32) {}
func (d *countingDriver) DelayMilliseconds(uint32) {}
func (d *countingDriver) EnterAtomic() { d.enter++ }
func (d *countingDriver) ExitAtomic() { d.exit++ }

func TestLockReleasesOnce(t *testing.T) {
	d := &countingDriver{}

	release := Lock(d)
	assert.Equal(t, 1, d.enter)
	assert.Equal(t, 0, d.exit)

	release()
	release()
	assert.Equal(t, 1, d.exit)
}

func TestLockReleasedOnPanic(t *testing.T) {
	d := &countingDriver{}

	func() {
		defer func() {
			_ = recover()
		}()
		release := Lock(d)
		defer release()
		panic("aborted clock sequence")
	}()

	assert.Equal(t, 1, d.enter)
	assert.Equal(t, 1, d.exit)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "High", High.String())
	assert.Equal(t, "Low", Low.String())
}
