package svc

import "errors"

// ErrStorageInitFailed 错误：暂存存储初始化失败
var ErrStorageInitFailed = errors.New("staging storage initialization failed")
