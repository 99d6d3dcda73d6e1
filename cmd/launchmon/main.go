package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlaunch/launchmon/internal/session"
	"github.com/openlaunch/launchmon/model"
)

var (
	flagMetricsAddr string
	flagGSProAddr   string
	flagMQTTBroker  string
	flagMQTTTopic   string

	flagTempF       float64
	flagElevationFt float64
	flagHumidityPct float64
	flagWindMPH     float64
	flagWindDirDeg  float64
	flagSurface     string
)

var rootCmd = &cobra.Command{
	Use:   "launchmon",
	Short: "Launch monitor bridge: ingest GC2 telemetry, simulate ball flight, relay results.",
	Long: `launchmon connects to a GC2-class launch monitor over TCP or a serial
bridge, validates each measured shot, computes the resulting ball flight
under the configured environmental conditions, and optionally relays
shots to a GSPro simulator and results to an MQTT broker.`,
	SilenceUsage: true,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Dial the sensor (TCP client) or open a serial bridge and process shots",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		serialPort, _ := cmd.Flags().GetString("serial")
		baud, _ := cmd.Flags().GetInt("baud")
		reconnect, _ := cmd.Flags().GetBool("reconnect")

		var connector session.Connector
		if serialPort != "" {
			connector = &session.SerialBridge{Port: serialPort, Baud: baud}
		} else {
			connector = &session.TCPClient{Address: address}
		}
		return runSession(cmd.Context(), connector, reconnect)
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Bind a port and wait for the sensor to dial in (TCP server)",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		return runSession(cmd.Context(), &session.TCPServer{Address: address}, false)
	},
}

var shotCmd = &cobra.Command{
	Use:   "shot",
	Short: "Simulate a single shot from flags and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		speed, _ := cmd.Flags().GetFloat64("speed")
		launch, _ := cmd.Flags().GetFloat64("launch")
		direction, _ := cmd.Flags().GetFloat64("direction")
		backspin, _ := cmd.Flags().GetFloat64("backspin")
		sidespin, _ := cmd.Flags().GetFloat64("sidespin")
		return runOneShot(cmd.Context(), speed, launch, direction, backspin, sidespin)
	},
}

func environmentFromFlags() model.EnvironmentalConditions {
	return model.EnvironmentalConditions{
		TemperatureF:     flagTempF,
		ElevationFt:      flagElevationFt,
		HumidityPct:      flagHumidityPct,
		WindSpeedMPH:     flagWindMPH,
		WindDirectionDeg: flagWindDirDeg,
	}
}

func surfaceFromFlags() (model.Surface, error) {
	switch strings.ToLower(flagSurface) {
	case "fairway", "":
		return model.SurfaceFairway, nil
	case "rough":
		return model.SurfaceRough, nil
	case "green":
		return model.SurfaceGreen, nil
	default:
		return 0, fmt.Errorf("unknown surface %q (want fairway, rough, or green)", flagSurface)
	}
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	pf.StringVar(&flagGSProAddr, "gspro", "", "GSPro Open Connect address, e.g. 127.0.0.1:921 (empty disables)")
	pf.StringVar(&flagMQTTBroker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables)")
	pf.StringVar(&flagMQTTTopic, "mqtt-topic", "launchmon", "MQTT topic prefix")
	pf.Float64Var(&flagTempF, "temp", 70, "air temperature in °F")
	pf.Float64Var(&flagElevationFt, "elevation", 0, "course elevation in feet")
	pf.Float64Var(&flagHumidityPct, "humidity", 50, "relative humidity in percent")
	pf.Float64Var(&flagWindMPH, "wind-speed", 0, "wind speed in mph")
	pf.Float64Var(&flagWindDirDeg, "wind-dir", 0, "wind direction in degrees (0 = headwind, 90 = left to right)")
	pf.StringVar(&flagSurface, "surface", "fairway", "landing surface: fairway, rough, or green")

	connectCmd.Flags().String("address", fmt.Sprintf("127.0.0.1:%d", session.DefaultPort), "sensor host:port")
	connectCmd.Flags().String("serial", "", "serial bridge device path (overrides --address)")
	connectCmd.Flags().Int("baud", 115200, "serial baud rate")
	connectCmd.Flags().Bool("reconnect", true, "reconnect automatically after unexpected disconnects")

	listenCmd.Flags().String("address", fmt.Sprintf(":%d", session.DefaultPort), "listen address")

	shotCmd.Flags().Float64("speed", 167, "ball speed in mph")
	shotCmd.Flags().Float64("launch", 10.9, "launch angle in degrees")
	shotCmd.Flags().Float64("direction", 0, "launch direction in degrees (+ right)")
	shotCmd.Flags().Float64("backspin", 2686, "backspin in rpm")
	shotCmd.Flags().Float64("sidespin", 0, "sidespin in rpm (+ curves right)")

	rootCmd.AddCommand(connectCmd, listenCmd, shotCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
