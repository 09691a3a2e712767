package storage

import (
	"HabitPact/storage/database"
	"HabitPact/storage/mq"
	"HabitPact/storage/redis"
)

// Init 按 Database -> Redis -> MQ 顺序初始化存储层
func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	return mq.Init()
}
