package notify

// Notifier 外部通知接口。发送即忘：失败只记日志，绝不向调用方抛错。
type Notifier interface {
	Notify(message string)
}

// Nop 空实现，未配置通知渠道时使用
type Nop struct{}

func (Nop) Notify(string) {}
