package gen

import (
	"fmt"

	"payout-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(NewSnowflakeNode))

const defaultNodeID = 1

type Params struct {
	fx.In
	Config *config.Config `optional:"true"`
}

// NewSnowflakeNode builds the id generator shared by every store. Each
// running process needs its own SNOWFLAKE.NODE_ID (0-1023).
func NewSnowflakeNode(p Params) (*snowflake.Node, error) {
	nodeID := int64(defaultNodeID)
	if p.Config != nil && p.Config.Snowflake.NodeID > 0 {
		nodeID = p.Config.Snowflake.NodeID
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}

	zap.L().Info("[Snowflake] node ready", zap.Int64("node_id", nodeID))
	return node, nil
}
