package service

import "errors"

// errQueueFull 错误：入库队列已满，该 tick 不进暂存（发布路径不受影响）
var errQueueFull = errors.New("staging queue full")

// ErrNoFeed 错误：管道缺少上游连接
var ErrNoFeed = errors.New("pipeline has no feed")
