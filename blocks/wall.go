package blocks

import "github.com/pthm-cable/bastion/world"

// WallBlock is a stateless solid block that stops units and bullets.
type WallBlock struct {
	world.BaseBlock
}
