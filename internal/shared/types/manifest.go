package types

// AppType classifies a mini-app
type AppType string

const (
	AppTypeBlockchain AppType = "blockchain"
	AppTypeWebApp     AppType = "webapp"
)

// Manifest describes an installed mini-app
type Manifest struct {
	AppID     string   `json:"app_id" yaml:"app_id" toml:"app_id"`
	Name      string   `json:"name" yaml:"name" toml:"name"`
	Version   string   `json:"version" yaml:"version" toml:"version"`
	Type      AppType  `json:"type" yaml:"type" toml:"type"`
	MainPage  string   `json:"main_page" yaml:"main_page" toml:"main_page"`
	Pages     []string `json:"pages" yaml:"pages" toml:"pages"`
	Reentrant bool     `json:"reentrant,omitempty" yaml:"reentrant,omitempty" toml:"reentrant,omitempty"`
}

// AppInfo is what a script sees from WalletBridge.getAppInfo()
type AppInfo struct {
	AppID   string `json:"appId"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Type    string `json:"type"`
	Origin  string `json:"origin"`
}
