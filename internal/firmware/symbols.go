// Package firmware models the configuration the climate relay firmware is
// compiled with: the cloud/WiFi credential bundle, the ESP-NOW peer
// addresses and the infrared code tables.
package firmware

// Symbol names as they appear in the firmware headers. Renderers and parsers
// must use these verbatim; the firmware sources reference them by name.
const (
	SymTemplateID   = "BLYNK_TEMPLATE_ID"
	SymTemplateName = "BLYNK_TEMPLATE_NAME"
	SymAuthToken    = "BLYNK_AUTH_TOKEN"
	SymWiFiSSID     = "WIFI_SSID"
	SymWiFiPassword = "WIFI_PASSWORD"

	SymCentralMAC     = "ESPNOW_CENTRAL_MAC"
	SymTransmitterMAC = "ESPNOW_TX_MAC"

	SymCarrierKHz = "IR_KHZ"
	symIRPrefix   = "IR_"
	symLenSuffix  = "_LEN"
)

// Header file names the firmware includes.
const (
	ConfigHeader = "config.h"
	IRHeader     = "ir_codes.h"
)
