package snowflake

import (
	"errors"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	mu   sync.Mutex

	errInvalidMachineID    = errors.New("invalid snowflake machine id")
	errInvalidDataCenterID = errors.New("invalid snowflake datacenter id")
)

// Init 以 datacenter(5bit) + machine(5bit) 组成 10bit 节点号
func Init(machineID, dataCenterID int64) error {
	if machineID < 0 || machineID > 31 {
		return errInvalidMachineID
	}
	if dataCenterID < 0 || dataCenterID > 31 {
		return errInvalidDataCenterID
	}

	n, err := snowflake.NewNode((dataCenterID << 5) | machineID)
	if err != nil {
		return err
	}

	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

func current() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()

	// 未显式 Init 时退化为节点 0，保证消息 ID 总能生成
	if node == nil {
		node, _ = snowflake.NewNode(0)
	}
	return node
}

func NextID() int64 {
	return current().Generate().Int64()
}

// NextIDString 用作 AMQP message_id
func NextIDString() string {
	return strconv.FormatInt(NextID(), 10)
}
