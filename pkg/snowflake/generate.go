package snowflake

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once

	errInvalidMachineID   = errors.New("invalid snowflake machine id")
	errInvalidDataCenter  = errors.New("invalid snowflake datacenter id")
	errGeneratorUninitial = errors.New("snowflake generator is not initialized")
)

// Init 初始化全局节点，datacenterID 和 machineID 都是 0~31
func Init(machineID, dataCenterID int64) error {
	var initErr error

	once.Do(func() {
		node, initErr = NewNode(machineID, dataCenterID)
	})

	return initErr
}

// NewNode 创建独立节点，测试中避免依赖全局状态
func NewNode(machineID, dataCenterID int64) (*snowflake.Node, error) {
	if machineID < 0 || machineID > 31 {
		return nil, errInvalidMachineID
	}
	if dataCenterID < 0 || dataCenterID > 31 {
		return nil, errInvalidDataCenter
	}

	nodeID := (dataCenterID << 5) | machineID
	return snowflake.NewNode(nodeID)
}

func NextID() (int64, error) {
	if node == nil {
		return 0, errGeneratorUninitial
	}

	return node.Generate().Int64(), nil
}

// Generator 包装节点为 IDGenerator 形式
func Generator(n *snowflake.Node) func() (int64, error) {
	return func() (int64, error) {
		return n.Generate().Int64(), nil
	}
}
