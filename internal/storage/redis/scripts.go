package redis

const (
	// createActivityScript atomically claims the open slot for
	// (user, platform, date) and writes the activity with its indexes.
	createActivityScript = `
local activity_key = KEYS[1]   -- st:activity:{id}
local open_slot = KEYS[2]      -- st:activities:open:{userID}:{platform}:{date}
local date_set = KEYS[3]       -- st:activities:user:{userID}:date:{date}
local timeline = KEYS[4]       -- st:activities:user:{userID}
local open_set = KEYS[5]       -- st:activities:open

local id = ARGV[1]
local user_id = ARGV[2]
local platform = ARGV[3]
local start_time = ARGV[4]
local url = ARGV[5]
local date = ARGV[6]
local created_at = ARGV[7]
local score = ARGV[8]

-- The slot is the unique constraint on open activities
if redis.call('EXISTS', open_slot) == 1 then
  return 'EXISTS'
end

redis.call('HSET', activity_key,
  'id', id,
  'user_id', user_id,
  'platform', platform,
  'start_time', start_time,
  'end_time', '',
  'duration', 0,
  'url', url,
  'date', date,
  'created_at', created_at,
  'updated_at', created_at
)

redis.call('SET', open_slot, id)
redis.call('SADD', date_set, id)
redis.call('ZADD', timeline, score, id)
redis.call('SADD', open_set, id)

return 'OK'
`

	// closeActivityScript sets the end time of an open activity exactly once
	// and releases its open slot.
	closeActivityScript = `
local activity_key = KEYS[1]   -- st:activity:{id}
local open_set = KEYS[2]       -- st:activities:open
local open_slot = KEYS[3]      -- st:activities:open:{userID}:{platform}:{date}

local id = ARGV[1]
local end_time = ARGV[2]
local duration = ARGV[3]
local updated_at = ARGV[4]

if redis.call('EXISTS', activity_key) == 0 then
  return 'MISSING'
end

local ended = redis.call('HGET', activity_key, 'end_time')
if ended and ended ~= '' then
  return 'CLOSED'
end

redis.call('HSET', activity_key,
  'end_time', end_time,
  'duration', duration,
  'updated_at', updated_at
)
redis.call('SREM', open_set, id)

-- Only release the slot if it still belongs to this activity
if redis.call('GET', open_slot) == id then
  redis.call('DEL', open_slot)
end

return 'OK'
`
)
