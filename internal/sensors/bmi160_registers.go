// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// bmi160RegisterMap returns metadata for the BMI160 registers the debug UI shows.
func bmi160RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		// Identification and status
		{Address: "0x00", Name: "CHIP_ID", Description: "Chip identification", Access: "R", Default: "0xD1"},
		{Address: "0x02", Name: "ERR_REG", Description: "Error flags", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "mag_drdy_err", Description: "Magnetometer data ready error"},
				{Bits: "6", Name: "drop_cmd_err", Description: "Dropped command"},
				{Bits: "4:1", Name: "err_code", Description: "Error code", Values: "0=No error, 1=Error, 2=Low power + interrupt, 6=ODR mismatch, 7=Low power pre-filter"},
				{Bits: "0", Name: "fatal_err", Description: "Chip not operable"},
			}},
		{Address: "0x03", Name: "PMU_STATUS", Description: "Power mode of each sensor", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:4", Name: "acc_pmu_status", Description: "Accelerometer power mode", Values: "0=Suspend, 1=Normal, 2=Low power"},
				{Bits: "3:2", Name: "gyr_pmu_status", Description: "Gyroscope power mode", Values: "0=Suspend, 1=Normal, 3=Fast start-up"},
			}},

		// Sensor data (little-endian, LSB first)
		{Address: "0x0C", Name: "GYR_X_L", Description: "Gyroscope X low byte", Access: "R"},
		{Address: "0x0D", Name: "GYR_X_H", Description: "Gyroscope X high byte", Access: "R"},
		{Address: "0x0E", Name: "GYR_Y_L", Description: "Gyroscope Y low byte", Access: "R"},
		{Address: "0x0F", Name: "GYR_Y_H", Description: "Gyroscope Y high byte", Access: "R"},
		{Address: "0x10", Name: "GYR_Z_L", Description: "Gyroscope Z low byte", Access: "R"},
		{Address: "0x11", Name: "GYR_Z_H", Description: "Gyroscope Z high byte", Access: "R"},
		{Address: "0x12", Name: "ACC_X_L", Description: "Accelerometer X low byte", Access: "R"},
		{Address: "0x13", Name: "ACC_X_H", Description: "Accelerometer X high byte", Access: "R"},
		{Address: "0x14", Name: "ACC_Y_L", Description: "Accelerometer Y low byte", Access: "R"},
		{Address: "0x15", Name: "ACC_Y_H", Description: "Accelerometer Y high byte", Access: "R"},
		{Address: "0x16", Name: "ACC_Z_L", Description: "Accelerometer Z low byte", Access: "R"},
		{Address: "0x17", Name: "ACC_Z_H", Description: "Accelerometer Z high byte", Access: "R"},
		{Address: "0x1B", Name: "STATUS", Description: "Data ready and calibration status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "drdy_acc", Description: "New accelerometer data"},
				{Bits: "6", Name: "drdy_gyr", Description: "New gyroscope data"},
				{Bits: "3", Name: "foc_rdy", Description: "Fast offset compensation finished"},
				{Bits: "1", Name: "gyr_self_test_ok", Description: "Gyroscope self-test passed"},
			}},
		{Address: "0x20", Name: "TEMPERATURE_0", Description: "Temperature low byte", Access: "R"},
		{Address: "0x21", Name: "TEMPERATURE_1", Description: "Temperature high byte (0 = 23°C, 1/512 K per LSB)", Access: "R"},

		// Configuration
		{Address: "0x40", Name: "ACC_CONF", Description: "Accelerometer output data rate and bandwidth", Access: "RW", Default: "0x28",
			BitFields: []BitField{
				{Bits: "7", Name: "acc_us", Description: "Undersampling", Values: "0=Off, 1=On"},
				{Bits: "6:4", Name: "acc_bwp", Description: "Bandwidth parameter", Values: "2=Normal"},
				{Bits: "3:0", Name: "acc_odr", Description: "Output data rate", Values: "5=12.5Hz, 6=25Hz, 7=50Hz, 8=100Hz, 9=200Hz, 10=400Hz, 11=800Hz, 12=1600Hz"},
			}},
		{Address: "0x41", Name: "ACC_RANGE", Description: "Accelerometer range", Access: "RW", Default: "0x03",
			BitFields: []BitField{
				{Bits: "3:0", Name: "acc_range", Description: "Full scale", Values: "3=±2g, 5=±4g, 8=±8g, 12=±16g"},
			}},
		{Address: "0x42", Name: "GYR_CONF", Description: "Gyroscope output data rate and bandwidth", Access: "RW", Default: "0x28",
			BitFields: []BitField{
				{Bits: "5:4", Name: "gyr_bwp", Description: "Bandwidth parameter", Values: "2=Normal"},
				{Bits: "3:0", Name: "gyr_odr", Description: "Output data rate", Values: "6=25Hz, 7=50Hz, 8=100Hz, 9=200Hz, 10=400Hz, 11=800Hz, 12=1600Hz, 13=3200Hz"},
			}},
		{Address: "0x43", Name: "GYR_RANGE", Description: "Gyroscope range", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "2:0", Name: "gyr_range", Description: "Full scale", Values: "0=±2000°/s, 1=±1000°/s, 2=±500°/s, 3=±250°/s, 4=±125°/s"},
			}},

		// Offset compensation
		{Address: "0x69", Name: "FOC_CONF", Description: "Fast offset compensation targets", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6", Name: "foc_gyr_en", Description: "Gyroscope FOC", Values: "0=Off, 1=On"},
				{Bits: "5:4", Name: "foc_acc_x", Description: "Accel X target", Values: "0=Off, 1=+1g, 2=-1g, 3=0g"},
				{Bits: "3:2", Name: "foc_acc_y", Description: "Accel Y target", Values: "0=Off, 1=+1g, 2=-1g, 3=0g"},
				{Bits: "1:0", Name: "foc_acc_z", Description: "Accel Z target", Values: "0=Off, 1=+1g, 2=-1g, 3=0g"},
			}},
		{Address: "0x71", Name: "OFFSET_ACC_X", Description: "Accelerometer X offset (3.9 mg/LSB)", Access: "RW", Default: "0x00"},
		{Address: "0x72", Name: "OFFSET_ACC_Y", Description: "Accelerometer Y offset (3.9 mg/LSB)", Access: "RW", Default: "0x00"},
		{Address: "0x73", Name: "OFFSET_ACC_Z", Description: "Accelerometer Z offset (3.9 mg/LSB)", Access: "RW", Default: "0x00"},
		{Address: "0x77", Name: "OFFSET_6", Description: "Offset enable and gyro offset MSBs", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "gyr_off_en", Description: "Apply gyroscope offsets"},
				{Bits: "6", Name: "acc_off_en", Description: "Apply accelerometer offsets"},
			}},

		// Commands
		{Address: "0x7E", Name: "CMD", Description: "Command register", Access: "W", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "cmd", Description: "Command", Values: "0x11=Accel normal, 0x15=Gyro normal, 0x37=Start FOC, 0xB6=Soft reset"},
			}},
	}
}
