package config

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
)

const (
	_DEFAULT_CONFIG_FILE   = "gorealm.ini"
	_DEFAULT_LOCALHOST_IP  = "127.0.0.1"
	_DEFAULT_HTTP_IP       = "127.0.0.1"
	_DEFAULT_LOG_LEVEL     = "debug"
	_DEFAULT_MAX_CONNS     = 1000
	_DEFAULT_AUTH_KEY_PREF = "account:password:"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	realmConfig    *RealmConfig
	configLock     sync.Mutex
)

// NetLibConfig defines the framing and buffer settings shared by every node
type NetLibConfig struct {
	ProtocolIdentifier uint32
	ProtocolVersion    uint32
	ProtocolExtension  uint32
	ReadBufferSize     int
	WriteBufferSize    int
}

// MasterConfig defines fields of master config
type MasterConfig struct {
	BindIp    string
	Ip        string
	Port      int
	LogFile   string
	LogStderr bool
	HTTPIp    string
	HTTPPort  int
	LogLevel  string
}

// LoginConfig defines fields of login config
type LoginConfig struct {
	Ip                         string
	Port                       int
	KCPPort                    int
	MaxConnectionCount         int
	WorldListBroadcastInterval time.Duration
	DisconnectTimeout          time.Duration
	LogFile                    string
	LogStderr                  bool
	HTTPIp                     string
	HTTPPort                   int
	LogLevel                   string
}

// WorldConfig defines fields of world config
type WorldConfig struct {
	Ip                 string
	Port               int
	KCPPort            int
	MaxConnectionCount int
	WorldDataFile      string
	MaxPartyCount      int
	MaxInstanceCount   int
	SyncCoalesceTicks  int
	LoadReportInterval time.Duration
	DisconnectTimeout  time.Duration
	LogFile            string
	LogStderr          bool
	HTTPIp             string
	HTTPPort           int
	LogLevel           string
}

// AuthConfig defines fields of the credential store used by the master
type AuthConfig struct {
	Url         string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// RealmConfig defines the total config file structure
type RealmConfig struct {
	NetLib      NetLibConfig
	Master      MasterConfig
	Login       LoginConfig
	WorldCommon WorldConfig
	Worlds      map[int]*WorldConfig
	Auth        AuthConfig
}

// SetConfigFile sets the config file path (gorealm.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config
func Get() *RealmConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if realmConfig == nil {
		realmConfig = readRealmConfig()
	}
	return realmConfig
}

// Reload forces to reload the whole config
func Reload() *RealmConfig {
	configLock.Lock()
	realmConfig = nil
	configLock.Unlock()

	return Get()
}

// GetNetLib returns the netlib config
func GetNetLib() *NetLibConfig {
	return &Get().NetLib
}

// GetMaster returns the master config
func GetMaster() *MasterConfig {
	return &Get().Master
}

// GetLogin returns the login config
func GetLogin() *LoginConfig {
	return &Get().Login
}

// GetWorld gets the world config of specified world index
func GetWorld(worldid uint8) *WorldConfig {
	return Get().Worlds[int(worldid)]
}

// GetAuth returns the credential store config
func GetAuth() *AuthConfig {
	return &Get().Auth
}

// GetWorldIDs returns all world node indices
func GetWorldIDs() []uint8 {
	cfg := Get()
	worldIDs := make([]int, 0, len(cfg.Worlds))
	for id := range cfg.Worlds {
		worldIDs = append(worldIDs, id)
	}
	sort.Ints(worldIDs)

	res := make([]uint8, len(worldIDs))
	for i, id := range worldIDs {
		res[i] = uint8(id)
	}
	return res
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readRealmConfig() *RealmConfig {
	config := RealmConfig{
		Worlds: map[int]*WorldConfig{},
	}
	gwlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	readNetLibConfig(iniFile.Section("netlib"), &config.NetLib)
	readMasterConfig(iniFile.Section("master"), &config.Master)
	readLoginConfig(iniFile.Section("login"), &config.Login)
	readWorldCommonConfig(iniFile.Section("world_common"), &config.WorldCommon)
	readAuthConfig(iniFile.Section("auth"), &config.Auth)

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		if secName == "default" {
			continue
		}

		if secName == "netlib" || secName == "master" || secName == "login" || secName == "world_common" || secName == "auth" {
			// read above
		} else if len(secName) > 5 && secName[:5] == "world" {
			id, err := strconv.Atoi(secName[5:])
			checkConfigError(err, fmt.Sprintf("invalid world name: %s", secName))
			if id <= 0 || id >= 0xFF {
				gwlog.Panicf("invalid world index: %s", secName)
			}
			config.Worlds[id] = readWorldConfig(sec, &config.WorldCommon)
		} else {
			gwlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(&config)
	return &config
}

func readNetLibConfig(sec *ini.Section, nc *NetLibConfig) {
	nc.ReadBufferSize = consts.BUFFERED_READ_BUFFSIZE
	nc.WriteBufferSize = consts.BUFFERED_WRITE_BUFFSIZE

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "protocol_identifier" {
			nc.ProtocolIdentifier = uint32(key.MustUint(uint(nc.ProtocolIdentifier)))
		} else if name == "protocol_version" {
			nc.ProtocolVersion = uint32(key.MustUint(uint(nc.ProtocolVersion)))
		} else if name == "protocol_extension" {
			nc.ProtocolExtension = uint32(key.MustUint(uint(nc.ProtocolExtension)))
		} else if name == "read_buffer_size" {
			nc.ReadBufferSize = key.MustInt(nc.ReadBufferSize)
		} else if name == "write_buffer_size" {
			nc.WriteBufferSize = key.MustInt(nc.WriteBufferSize)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readMasterConfig(sec *ini.Section, mc *MasterConfig) {
	mc.BindIp = _DEFAULT_LOCALHOST_IP
	mc.Ip = _DEFAULT_LOCALHOST_IP
	mc.LogFile = "master.log"
	mc.LogStderr = true
	mc.LogLevel = _DEFAULT_LOG_LEVEL
	mc.HTTPIp = _DEFAULT_HTTP_IP
	mc.HTTPPort = 0

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			mc.Ip = key.MustString(mc.Ip)
		} else if name == "port" {
			mc.Port = key.MustInt(mc.Port)
		} else if name == "bind_ip" {
			mc.BindIp = key.MustString(mc.BindIp)
		} else if name == "log_file" {
			mc.LogFile = key.MustString(mc.LogFile)
		} else if name == "log_stderr" {
			mc.LogStderr = key.MustBool(mc.LogStderr)
		} else if name == "http_ip" {
			mc.HTTPIp = key.MustString(mc.HTTPIp)
		} else if name == "http_port" {
			mc.HTTPPort = key.MustInt(mc.HTTPPort)
		} else if name == "log_level" {
			mc.LogLevel = key.MustString(mc.LogLevel)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readLoginConfig(sec *ini.Section, lc *LoginConfig) {
	lc.Ip = "0.0.0.0"
	lc.MaxConnectionCount = _DEFAULT_MAX_CONNS
	lc.WorldListBroadcastInterval = time.Second * 5
	lc.DisconnectTimeout = time.Minute
	lc.LogFile = "login.log"
	lc.LogStderr = true
	lc.LogLevel = _DEFAULT_LOG_LEVEL
	lc.HTTPIp = _DEFAULT_HTTP_IP
	lc.HTTPPort = 0 // pprof not enabled by default

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			lc.Ip = key.MustString(lc.Ip)
		} else if name == "port" {
			lc.Port = key.MustInt(lc.Port)
		} else if name == "kcp_port" {
			lc.KCPPort = key.MustInt(lc.KCPPort)
		} else if name == "max_connection_count" {
			lc.MaxConnectionCount = key.MustInt(lc.MaxConnectionCount)
		} else if name == "world_list_broadcast_interval" {
			lc.WorldListBroadcastInterval = time.Second * time.Duration(key.MustInt(int(lc.WorldListBroadcastInterval/time.Second)))
		} else if name == "disconnect_timeout" {
			lc.DisconnectTimeout = time.Second * time.Duration(key.MustInt(int(lc.DisconnectTimeout/time.Second)))
		} else if name == "log_file" {
			lc.LogFile = key.MustString(lc.LogFile)
		} else if name == "log_stderr" {
			lc.LogStderr = key.MustBool(lc.LogStderr)
		} else if name == "http_ip" {
			lc.HTTPIp = key.MustString(lc.HTTPIp)
		} else if name == "http_port" {
			lc.HTTPPort = key.MustInt(lc.HTTPPort)
		} else if name == "log_level" {
			lc.LogLevel = key.MustString(lc.LogLevel)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readWorldCommonConfig(sec *ini.Section, wc *WorldConfig) {
	wc.Ip = "0.0.0.0"
	wc.MaxConnectionCount = _DEFAULT_MAX_CONNS
	wc.WorldDataFile = "worlds.yaml"
	wc.MaxPartyCount = 1024
	wc.MaxInstanceCount = 256
	wc.SyncCoalesceTicks = 5
	wc.LoadReportInterval = time.Second * 5
	wc.DisconnectTimeout = time.Minute
	wc.LogFile = "world.log"
	wc.LogStderr = true
	wc.LogLevel = _DEFAULT_LOG_LEVEL
	wc.HTTPIp = _DEFAULT_HTTP_IP
	wc.HTTPPort = 0

	_readWorldConfig(sec, wc)
}

func readWorldConfig(sec *ini.Section, worldCommonConfig *WorldConfig) *WorldConfig {
	wc := *worldCommonConfig // copy from world_common
	_readWorldConfig(sec, &wc)
	return &wc
}

func _readWorldConfig(sec *ini.Section, wc *WorldConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			wc.Ip = key.MustString(wc.Ip)
		} else if name == "port" {
			wc.Port = key.MustInt(wc.Port)
		} else if name == "kcp_port" {
			wc.KCPPort = key.MustInt(wc.KCPPort)
		} else if name == "max_connection_count" {
			wc.MaxConnectionCount = key.MustInt(wc.MaxConnectionCount)
		} else if name == "world_data_file" {
			wc.WorldDataFile = key.MustString(wc.WorldDataFile)
		} else if name == "max_party_count" {
			wc.MaxPartyCount = key.MustInt(wc.MaxPartyCount)
		} else if name == "max_instance_count" {
			wc.MaxInstanceCount = key.MustInt(wc.MaxInstanceCount)
		} else if name == "sync_coalesce_ticks" {
			wc.SyncCoalesceTicks = key.MustInt(wc.SyncCoalesceTicks)
		} else if name == "load_report_interval" {
			wc.LoadReportInterval = time.Second * time.Duration(key.MustInt(int(wc.LoadReportInterval/time.Second)))
		} else if name == "disconnect_timeout" {
			wc.DisconnectTimeout = time.Second * time.Duration(key.MustInt(int(wc.DisconnectTimeout/time.Second)))
		} else if name == "log_file" {
			wc.LogFile = key.MustString(wc.LogFile)
		} else if name == "log_stderr" {
			wc.LogStderr = key.MustBool(wc.LogStderr)
		} else if name == "http_ip" {
			wc.HTTPIp = key.MustString(wc.HTTPIp)
		} else if name == "http_port" {
			wc.HTTPPort = key.MustInt(wc.HTTPPort)
		} else if name == "log_level" {
			wc.LogLevel = key.MustString(wc.LogLevel)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readAuthConfig(sec *ini.Section, ac *AuthConfig) {
	ac.KeyPrefix = _DEFAULT_AUTH_KEY_PREF
	ac.DialTimeout = time.Second * 5

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "url" {
			ac.Url = key.MustString(ac.Url)
		} else if name == "db" {
			ac.DB = key.MustInt(ac.DB)
		} else if name == "key_prefix" {
			ac.KeyPrefix = key.MustString(ac.KeyPrefix)
		} else if name == "dial_timeout" {
			ac.DialTimeout = time.Second * time.Duration(key.MustInt(int(ac.DialTimeout/time.Second)))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}

func validateConfig(config *RealmConfig) {
	if config.NetLib.ReadBufferSize <= 0 || config.NetLib.WriteBufferSize <= 0 {
		gwlog.Panicf("read_buffer_size and write_buffer_size must be positive")
	}
	if config.Master.Port == 0 {
		gwlog.Panicf("master port is not set")
	}
	if config.Login.Port == 0 {
		gwlog.Panicf("login port is not set")
	}
	if config.Login.MaxConnectionCount <= 0 {
		gwlog.Panicf("login max_connection_count must be positive")
	}
	if config.Login.WorldListBroadcastInterval <= 0 {
		gwlog.Panicf("login world_list_broadcast_interval must be positive")
	}
	if config.Auth.Url == "" {
		gwlog.Panicf("auth url is not set")
	}

	if len(config.Worlds) == 0 {
		gwlog.Panicf("world not found in config file, must has at least 1 world")
	}
	for id, wc := range config.Worlds {
		if wc.Port == 0 {
			gwlog.Panicf("world%d port is not set", id)
		}
		if wc.WorldDataFile == "" {
			gwlog.Panicf("world%d world_data_file is not set", id)
		}
		if wc.MaxPartyCount <= 0 || wc.MaxInstanceCount <= 0 || wc.MaxConnectionCount <= 0 {
			gwlog.Panicf("world%d pool sizes must be positive", id)
		}
		if wc.SyncCoalesceTicks < 1 {
			gwlog.Panicf("world%d sync_coalesce_ticks must be at least 1", id)
		}
	}
}
