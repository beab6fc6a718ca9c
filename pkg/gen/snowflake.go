package gen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen", fx.Provide(NewNode))

func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// ID renders a snowflake with an entity prefix, e.g. "lic_1849301093847".
func ID(node *snowflake.Node, prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, node.Generate().String())
}
