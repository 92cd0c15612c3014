package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Near     NearConfig     `mapstructure:"near"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Multisig MultisigConfig `mapstructure:"multisig"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// NearConfig 节点 RPC 与限流参数
type NearConfig struct {
	RpcUrl    string  `mapstructure:"rpc_url"`
	NetworkID string  `mapstructure:"network_id"` // mainnet / testnet
	Rate      float64 `mapstructure:"rate"`       // 每秒允许的 RPC 调用数
	MaxTokens float64 `mapstructure:"max_tokens"` // 令牌桶容量
}

// LedgerConfig 硬件签名设备
type LedgerConfig struct {
	Transport   string `mapstructure:"transport"`    // "tcp" (模拟器) 或 "ws" (桥接)
	Addr        string `mapstructure:"addr"`         // 127.0.0.1:9999 或 ws://127.0.0.1:8435/apdu
	NetworkByte string `mapstructure:"network_byte"` // 'W' 主网, 'T' 测试网
	Path        string `mapstructure:"path"`         // 默认派生路径
}

type WalletConfig struct {
	AccountID    string   `mapstructure:"account_id"`    // 签名账户
	Kind         string   `mapstructure:"kind"`          // ledger / local / remote
	PublicKey    string   `mapstructure:"public_key"`    // remote 账户需要显式配置公钥
	Contracts    []string `mapstructure:"contracts"`     // 账户可操作的多签合约，为空表示账户本身即合约
	Url          string   `mapstructure:"url"`           // 远程钱包 (co-signer) 地址
	CallbackUrl  string   `mapstructure:"callback_url"`  // 远程钱包签名完成后的回调地址
	KeystorePath string   `mapstructure:"keystore_path"` // 本地 Keystore 文件路径
	Password     string   `mapstructure:"password"`      // Keystore 密码 (通常通过环境变量 WALLET_PASSWORD 传入)
}

// MultisigConfig 多签合约相关配置
type MultisigConfig struct {
	// ContractVersion 决定撤销成员时使用 DeleteKey (v1) 还是 DeleteMember (v2)
	ContractVersion string        `mapstructure:"contract_version"`
	RequestGasTera  string        `mapstructure:"request_gas_tera"`
	ConfirmGasTera  string        `mapstructure:"confirm_gas_tera"`
	WatchContracts  []string      `mapstructure:"watch_contracts"`
	PollSpec        string        `mapstructure:"poll_spec"`
	LockupSuffix    string        `mapstructure:"lockup_suffix"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"` // 请求视图缓存有效期，本地副本最多保留一半
}

var Global Config

// Init 加载全局配置，供 cmd/ 下的入口使用
func Init() {
	cfg, err := Load("")
	if err != nil {
		log.Fatalf("Fatal error config file: %s \n", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 读取配置文件 + 环境变量，path 为空时按默认目录查找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// 环境变量设置: near.rpc_url -> NEAR_RPC_URL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "multisig_user")
	v.SetDefault("db.password", "multisig_password")
	v.SetDefault("db.name", "multisig_db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mq_type", "redis")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("near.rpc_url", "https://rpc.testnet.near.org")
	v.SetDefault("near.network_id", "testnet")
	v.SetDefault("near.rate", 10)
	v.SetDefault("near.max_tokens", 10)

	v.SetDefault("ledger.transport", "tcp")
	v.SetDefault("ledger.addr", "127.0.0.1:9999")
	v.SetDefault("ledger.network_byte", "W")
	v.SetDefault("ledger.path", "44'/397'/0'/0'/1'")

	v.SetDefault("wallet.kind", "ledger")
	v.SetDefault("wallet.url", "https://testnet.mynearwallet.com")
	v.SetDefault("wallet.callback_url", "http://localhost:8080/api/v1/sign/callback")
	v.SetDefault("wallet.keystore_path", "keystore.json")

	v.SetDefault("multisig.contract_version", "v1")
	v.SetDefault("multisig.request_gas_tera", "100")
	v.SetDefault("multisig.confirm_gas_tera", "250")
	v.SetDefault("multisig.poll_spec", "@every 30s")
	v.SetDefault("multisig.lockup_suffix", "lockup.near")
	v.SetDefault("multisig.cache_ttl", "5s")
}
