/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sat Feb 16 10:12:31 2019 mstenber
 * Last modified: Sat Feb 16 10:58:02 2019 mstenber
 * Edit time:     34 min
 *
 */

package scsi

// SCSI status byte values.
const (
	StatusGood                     = 0x00
	StatusCheckCondition           = 0x02
	StatusConditionMet             = 0x04
	StatusBusy                     = 0x08
	StatusIntermediate             = 0x10
	StatusIntermediateConditionMet = 0x14
	StatusReservationConflict      = 0x18
	StatusCommandTerminated        = 0x22
	StatusQueueFull                = 0x28
)

// Sense keys.
const (
	SenseNoSense        = 0x00
	SenseRecoveredError = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
	SenseBlankCheck     = 0x08
	SenseUnique         = 0x09
	SenseCopyAborted    = 0x0A
	SenseAbortedCommand = 0x0B
	SenseEqual          = 0x0C
	SenseVolumeOverflow = 0x0D
	SenseMiscompare     = 0x0E
	SenseReserved       = 0x0F
)

// Additional sense codes.
const (
	ASCNoSense                    = 0x00
	ASCNoSeekComplete             = 0x02
	ASCWrite                      = 0x03
	ASCLunNotReady                = 0x04
	ASCLunCommunication           = 0x08
	ASCServoError                 = 0x09
	ASCWarning                    = 0x0B
	ASCWriteError                 = 0x0C
	ASCCopyTargetDeviceError      = 0x0D
	ASCUnrecoveredError           = 0x11
	ASCTrackError                 = 0x14
	ASCSeekError                  = 0x15
	ASCRecDataNoECC               = 0x17
	ASCRecDataECC                 = 0x18
	ASCDefectListError            = 0x19
	ASCParameterListLength        = 0x1A
	ASCIllegalCommand             = 0x20
	ASCAccessDenied               = 0x20
	ASCIllegalBlock               = 0x21
	ASCInvalidToken               = 0x23
	ASCInvalidCDB                 = 0x24
	ASCInvalidLun                 = 0x25
	ASCInvalidFieldParameterList  = 0x26
	ASCWriteProtect               = 0x27
	ASCMediumChanged              = 0x28
	ASCBusReset                   = 0x29
	ASCParametersChanged          = 0x2A
	ASCInsufficientTime           = 0x2E
	ASCInvalidMedia               = 0x30
	ASCDefectList                 = 0x32
	ASCLbProvisioning             = 0x38
	ASCNoMediaInDevice            = 0x3A
	ASCPositionError              = 0x3B
	ASCLogicalUnitError           = 0x3E
	ASCOperatingConditionsChanged = 0x3F
	ASCDataPathFailure            = 0x41
	ASCPowerOnSelfTestFailure     = 0x42
	ASCInternalTargetFailure      = 0x44
	ASCDataTransferError          = 0x4B
	ASCLunFailedSelfConfiguration = 0x4C
	ASCResourceFailure            = 0x55
	ASCOperatorRequest            = 0x5A
	ASCFailurePredictionThreshold = 0x5D
	ASCVendorUnique               = 0x80
)

// Peripheral device types; storage units are always direct access.
const (
	DeviceTypeDirectAccess = 0x00
)

var senseKeyNames = []string{
	"NO SENSE",
	"RECOVERED ERROR",
	"NOT READY",
	"MEDIUM ERROR",
	"HARDWARE ERROR",
	"ILLEGAL REQUEST",
	"UNIT ATTENTION",
	"DATA PROTECT",
	"BLANK CHECK",
	"VENDOR SPECIFIC",
	"COPY ABORTED",
	"ABORTED COMMAND",
	"EQUAL",
	"VOLUME OVERFLOW",
	"MISCOMPARE",
	"RESERVED",
}

// SenseKeyName returns the human readable name of the sense key.
func SenseKeyName(key uint8) string {
	if int(key) < len(senseKeyNames) {
		return senseKeyNames[key]
	}
	return "UNKNOWN"
}
