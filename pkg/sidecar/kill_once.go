package sidecar

import (
	"sync"
)

// killCapability is the at-most-once consumable kill action. The first
// take gets the live capability, every subsequent take gets nil and treats
// it as a safe no-op, so the sidecar is never signalled twice through a
// live capability no matter how many exit events fire.
type killCapability struct {
	mutex sync.Mutex
	kill  func() error
}

// arm installs the capability. Called once, right after spawn.
func (c *killCapability) arm(kill func() error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.kill = kill
}

// take consumes the capability; nil when already taken or never armed
func (c *killCapability) take() func() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	kill := c.kill
	c.kill = nil
	return kill
}
