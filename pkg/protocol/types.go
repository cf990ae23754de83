package protocol

// NumJoints is the number of joint slots on every Linkbot form factor
const NumJoints = 3

// FormFactor identifies the body type of a Linkbot
type FormFactor uint32

const (
	FormFactorI FormFactor = iota
	FormFactorL
	FormFactorT
	FormFactorDongle
)

func (f FormFactor) String() string {
	switch f {
	case FormFactorI:
		return "I"
	case FormFactorL:
		return "L"
	case FormFactorT:
		return "T"
	case FormFactorDongle:
		return "dongle"
	}
	return "unknown"
}

// Button identifies a physical button
type Button uint32

const (
	ButtonPower Button = iota
	ButtonA
	ButtonB
)

// ButtonState is the position of a button
type ButtonState uint8

const (
	ButtonUp ButtonState = iota
	ButtonDown
)

// JointState is the drive state of a joint
type JointState uint8

const (
	JointCoast JointState = iota
	JointHold
	JointMoving
	JointFailure
	JointPower
)

// =============================================================================
// Proxy → Daemon request payloads
// =============================================================================

// LEDColor sets the RGB LED
type LEDColor struct {
	Red   uint8 `json:"red"`
	Green uint8 `json:"green"`
	Blue  uint8 `json:"blue"`
}

// MotorSpeeds sets joint angular speeds for the joints selected by Mask
type MotorSpeeds struct {
	Mask   uint8              `json:"mask"`
	Speeds [NumJoints]float32 `json:"speeds"` // Radians per second
}

// MoveCommand moves up to three joints; a nil goal leaves that joint alone
type MoveCommand struct {
	Goals [NumJoints]*Goal `json:"goals"`
}

// StopCommand stops the joints selected by Mask
type StopCommand struct {
	Mask uint8 `json:"mask"`
}

// BuzzerFrequency sets the buzzer tone; 0 silences it
type BuzzerFrequency struct {
	Frequency float32 `json:"frequency"` // Hertz
}

// EventEnable turns an event stream on or off
type EventEnable struct {
	Enable bool `json:"enable"`
}

// =============================================================================
// Daemon → Proxy reply payloads
// =============================================================================

// Accelerometer contains one accelerometer reading in g
type Accelerometer struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// EncoderValues contains joint angles at a device-clock timestamp
type EncoderValues struct {
	Timestamp uint32             `json:"timestamp"`
	Angles    [NumJoints]float32 `json:"angles"` // Radians
}

// FormFactorData answers get_form_factor
type FormFactorData struct {
	FormFactor FormFactor `json:"form_factor"`
}

// =============================================================================
// Daemon → Proxy event payloads
// =============================================================================

// AccelerometerEvent is an unsolicited accelerometer sample
type AccelerometerEvent struct {
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
	Z         float32 `json:"z"`
	Timestamp uint32  `json:"timestamp"`
}

// ButtonEvent reports a button press or release
type ButtonEvent struct {
	Button    Button      `json:"button"`
	State     ButtonState `json:"state"`
	Timestamp uint32      `json:"timestamp"`
}

// JointEvent reports a joint state change
type JointEvent struct {
	Joint     uint32     `json:"joint"`
	State     JointState `json:"state"`
	Timestamp uint32     `json:"timestamp"`
}

// ConnectEvent reports that a robot is connected to the daemon
type ConnectEvent struct {
	Timestamp uint32 `json:"timestamp"`
}
