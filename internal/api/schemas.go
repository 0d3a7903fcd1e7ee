package api

// Amounts travel as decimal strings so no float rounding happens between
// the wire and the ledger. Two fraction digits at most; leading sign is
// rejected, operations are always stated as positive amounts. The backslash
// is doubled because the pattern is spliced into JSON source.
const amountPattern = `^[0-9]+(\\.[0-9]{1,2})?$`

const registerSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["email", "password"],
  "properties": {
    "email": {"type": "string", "format": "email", "minLength": 3, "maxLength": 255},
    "mobile": {"type": "string", "maxLength": 32},
    "password": {"type": "string", "minLength": 8, "maxLength": 128}
  }
}`

const loginSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["email", "password"],
  "properties": {
    "email": {"type": "string", "minLength": 3, "maxLength": 255},
    "password": {"type": "string", "minLength": 1, "maxLength": 128}
  }
}`

const depositSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "account_id": {"type": "string", "minLength": 1, "maxLength": 64},
    "amount": {"type": "string", "pattern": "` + amountPattern + `"}
  }
}`

const withdrawSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "amount": {"type": "string", "pattern": "` + amountPattern + `"}
  }
}`

const transferSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["receiver_id", "amount"],
  "properties": {
    "receiver_id": {"type": "string", "minLength": 1, "maxLength": 64},
    "amount": {"type": "string", "pattern": "` + amountPattern + `"}
  }
}`
