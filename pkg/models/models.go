package models

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

type ServerKeyResponse struct {
	PublicKey string `json:"publicKey"`
	ExpiresAt string `json:"expiresAt"`
}

type RegisterKeyRequest struct {
	PublicKey string `json:"publicKey"`
}

type RegisterKeyResponse struct {
	ID           int    `json:"id"`
	ExpiresAt    string `json:"expiresAt"`
	IsActive     bool   `json:"isActive"`
	PublicKeyPem string `json:"publicKeyPem"`
	CreatedAt    string `json:"createdAt"`
}

type Device struct {
	Name string `json:"name"`
	MAC  string `json:"mac"`
	IP   string `json:"ip"`
}

type WakeRequest struct {
	MACAddress string `json:"macAddress"`
}

type WakeTarget struct {
	MACAddress string `json:"macAddress"`
}

type WakeResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Target    *WakeTarget `json:"target,omitempty"`
	Timestamp string      `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

type PingResponse struct {
	InputHost   string    `json:"inputHost"`
	Host        string    `json:"host"`
	NumericHost string    `json:"numeric_host,omitempty"`
	Alive       bool      `json:"alive"`
	Output      string    `json:"output"`
	Times       []float64 `json:"times"`
	Min         string    `json:"min"`
	Max         string    `json:"max"`
	Avg         string    `json:"avg"`
	StdDev      string    `json:"stddev"`
	PacketLoss  string    `json:"packetLoss"`
}

type UpResult struct {
	Hostname  string `json:"hostname"`
	Reachable bool   `json:"reachable"`
}

type DeviceStatus struct {
	Alive bool    `json:"alive"`
	Time  float64 `json:"time"`
}

type ShellCommandRequest struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Command    string `json:"command"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
}

type ShellCommandResponse struct {
	Success    bool   `json:"success"`
	Command    string `json:"command"`
	ExitStatus int    `json:"exitStatus"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

type SessionSnapshot struct {
	IsAuthenticated   bool       `json:"is_authenticated"`
	BearerTokenExpiry *time.Time `json:"bearer_token_expiry,omitempty"`
	ServerKeyExpiry   *time.Time `json:"server_key_expiry,omitempty"`
	IsLoading         bool       `json:"is_loading"`
}
