package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App   AppConfig
	SIFEN SIFENConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// SIFENConfig configuración del núcleo de envío a la SET (Paraguay).
// Superficie solo por variables de entorno; no hay flags de CLI.
type SIFENConfig struct {
	Environment string // "test" = homologación, "prod" = producción
	BaseURL     string // override de la URL base; vacío = URL oficial del ambiente

	CertPath     string // ruta al bundle PKCS#12 (.p12/.pfx)
	CertPassword string // contraseña del bundle

	CSC   string // código de seguridad de 9 dígitos (secreto); vacío = generar
	CSCID string // IdCSC asignado por la SET (4 dígitos)

	ConnectTimeoutSec int // timeout de conexión TCP/TLS
	ReadTimeoutSec    int // timeout de lectura de respuesta
	TotalTimeoutSec   int // plazo total por operación (incluye reintentos de red)

	MaxRetries       int     // reintentos adicionales al primer intento
	BackoffFactor    float64 // factor exponencial del delay entre reintentos
	CircuitThreshold int     // fallos consecutivos antes de abrir el circuito
	CircuitResetSec  int     // segundos en Open antes de permitir el intento de prueba

	TLSVerify bool // default true; false solo fuera de producción

	PoolMaxIdleConns    int // conexiones ociosas en el pool de transporte
	PoolMaxConnsPerHost int // tope de conexiones por host (bloquea, no falla)

	BatchMaxConcurrent int // documentos en vuelo simultáneos en SubmitBatch
}

// Validate verifica combinaciones inseguras o sin sentido.
func (c SIFENConfig) Validate(appEnv string) error {
	if c.Environment != "test" && c.Environment != "prod" {
		return fmt.Errorf("config: SIFEN_ENVIRONMENT desconocido %q (usar 'test' o 'prod')", c.Environment)
	}
	if !c.TLSVerify && (c.Environment == "prod" || appEnv == "production") {
		return fmt.Errorf("config: SIFEN_TLS_VERIFY=false no está permitido en producción")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: SIFEN_MAX_RETRIES no puede ser negativo")
	}
	if c.BatchMaxConcurrent < 1 {
		return fmt.Errorf("config: SIFEN_BATCH_MAX_CONCURRENT debe ser al menos 1")
	}
	return nil
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, SIFEN_ENVIRONMENT, SIFEN_CERT_PATH, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "sifen-core"),
		},
		SIFEN: SIFENConfig{
			Environment: getString(v, "SIFEN_ENVIRONMENT", "test"),
			BaseURL:     getString(v, "SIFEN_BASE_URL", ""),

			CertPath:     getString(v, "SIFEN_CERT_PATH", ""),
			CertPassword: getString(v, "SIFEN_CERT_PASSWORD", ""),

			CSC:   getString(v, "SIFEN_CSC", ""),
			CSCID: getString(v, "SIFEN_CSC_ID", "0001"),

			ConnectTimeoutSec: getInt(v, "SIFEN_CONNECT_TIMEOUT_SEC", 10),
			ReadTimeoutSec:    getInt(v, "SIFEN_READ_TIMEOUT_SEC", 30),
			TotalTimeoutSec:   getInt(v, "SIFEN_TOTAL_TIMEOUT_SEC", 90),

			MaxRetries:       getInt(v, "SIFEN_MAX_RETRIES", 3),
			BackoffFactor:    getFloat(v, "SIFEN_BACKOFF_FACTOR", 2.0),
			CircuitThreshold: getInt(v, "SIFEN_CIRCUIT_THRESHOLD", 5),
			CircuitResetSec:  getInt(v, "SIFEN_CIRCUIT_RESET_SEC", 60),

			TLSVerify: getBool(v, "SIFEN_TLS_VERIFY", true),

			PoolMaxIdleConns:    getInt(v, "SIFEN_POOL_MAX_IDLE", 10),
			PoolMaxConnsPerHost: getInt(v, "SIFEN_POOL_MAX_PER_HOST", 20),

			BatchMaxConcurrent: getInt(v, "SIFEN_BATCH_MAX_CONCURRENT", 5),
		},
	}

	if err := cfg.SIFEN.Validate(cfg.App.Env); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case string:
			f, _ := strconv.ParseFloat(v.GetString(key), 64)
			return f
		default:
			return v.GetFloat64(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
