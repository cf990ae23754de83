package protocol

// =============================================================================
// Helper functions for creating requests
// =============================================================================

// NewLEDColorRequest creates a set_led_color request
func NewLEDColorRequest(serial, requestID string, red, green, blue uint8) (*Message, error) {
	return NewRequest(TypeSetLEDColor, serial, requestID, LEDColor{
		Red:   red,
		Green: green,
		Blue:  blue,
	})
}

// NewMotorSpeedsRequest creates a set_motor_speeds request
func NewMotorSpeedsRequest(serial, requestID string, mask uint8, speeds [NumJoints]float32) (*Message, error) {
	return NewRequest(TypeSetMotorSpeeds, serial, requestID, MotorSpeeds{
		Mask:   mask,
		Speeds: speeds,
	})
}

// NewMoveRequest creates a move request. Goals are copied so callers may
// reuse their values.
func NewMoveRequest(serial, requestID string, g1, g2, g3 *Goal) (*Message, error) {
	var cmd MoveCommand
	for i, g := range [NumJoints]*Goal{g1, g2, g3} {
		if g != nil {
			goal := *g
			cmd.Goals[i] = &goal
		}
	}
	return NewRequest(TypeMove, serial, requestID, cmd)
}

// NewStopRequest creates a stop request for the joints in mask
func NewStopRequest(serial, requestID string, mask uint8) (*Message, error) {
	return NewRequest(TypeStop, serial, requestID, StopCommand{Mask: mask})
}

// NewBuzzerRequest creates a set_buzzer_frequency request
func NewBuzzerRequest(serial, requestID string, frequency float32) (*Message, error) {
	return NewRequest(TypeSetBuzzerFrequency, serial, requestID, BuzzerFrequency{Frequency: frequency})
}

// NewEventEnableRequest creates an enable_*_event request
func NewEventEnableRequest(msgType MessageType, serial, requestID string, enable bool) (*Message, error) {
	return NewRequest(msgType, serial, requestID, EventEnable{Enable: enable})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetLEDColor extracts an LED color from a message
func (m *Message) GetLEDColor() (*LEDColor, error) {
	var data LEDColor
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMotorSpeeds extracts motor speeds from a message
func (m *Message) GetMotorSpeeds() (*MotorSpeeds, error) {
	var data MotorSpeeds
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMoveCommand extracts a move command from a message
func (m *Message) GetMoveCommand() (*MoveCommand, error) {
	var data MoveCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStopCommand extracts a stop command from a message
func (m *Message) GetStopCommand() (*StopCommand, error) {
	var data StopCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetBuzzerFrequency extracts a buzzer frequency from a message
func (m *Message) GetBuzzerFrequency() (*BuzzerFrequency, error) {
	var data BuzzerFrequency
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEventEnable extracts an event toggle from a message
func (m *Message) GetEventEnable() (*EventEnable, error) {
	var data EventEnable
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAccelerometer extracts an accelerometer reading from a reply
func (m *Message) GetAccelerometer() (*Accelerometer, error) {
	var data Accelerometer
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEncoderValues extracts encoder values from a reply
func (m *Message) GetEncoderValues() (*EncoderValues, error) {
	var data EncoderValues
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFormFactor extracts the form factor from a reply
func (m *Message) GetFormFactor() (*FormFactorData, error) {
	var data FormFactorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAccelerometerEvent extracts an accelerometer event
func (m *Message) GetAccelerometerEvent() (*AccelerometerEvent, error) {
	var data AccelerometerEvent
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetButtonEvent extracts a button event
func (m *Message) GetButtonEvent() (*ButtonEvent, error) {
	var data ButtonEvent
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetJointEvent extracts a joint event
func (m *Message) GetJointEvent() (*JointEvent, error) {
	var data JointEvent
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetConnectEvent extracts a connect event
func (m *Message) GetConnectEvent() (*ConnectEvent, error) {
	var data ConnectEvent
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
