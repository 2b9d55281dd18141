package utils

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var node *snowflake.Node

// InitSnowflake sets up the process-wide id generator. machineID must be
// unique per running instance.
func InitSnowflake(machineID int64) (err error) {
	node, err = snowflake.NewNode(machineID)
	if err != nil {
		return fmt.Errorf("init snowflake node: %w", err)
	}
	return nil
}

func GenID() int64 {
	return node.Generate().Int64()
}
