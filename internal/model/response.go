package model

// ConnectionInfo RabbitMQ 连接信息
type ConnectionInfo struct {
	Host    string `json:"host"`
	Port    string `json:"port"`
	IsOpen  bool   `json:"is_open"`
	Library string `json:"library"`
}

// StaticUser 静态方法示例的内存用户
type StaticUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Created string `json:"created,omitempty"`
}

// Product DRF 商品示例
type Product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}
