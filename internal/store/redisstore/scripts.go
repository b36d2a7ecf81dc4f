package redisstore

// insertTicketScript writes a ticket and its indexes unless the user already
// holds an active ticket in the queue.
//
// KEYS: ticket hash, active guard, global status index, queue status index,
// user index, user active index
// ARGV: id, user_id, queue_id, ticket_number, status, created_at, updated_at
const insertTicketScript = `
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'user_id', ARGV[2], 'queue_id', ARGV[3], 'ticket_number', ARGV[4],
	'status', ARGV[5], 'created_at', ARGV[6], 'updated_at', ARGV[7])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[4], ARGV[1])
redis.call('ZADD', KEYS[5], ARGV[4], ARGV[1])
if ARGV[5] == 'waiting' or ARGV[5] == 'serving' then
	redis.call('SET', KEYS[2], ARGV[1])
	redis.call('ZADD', KEYS[6], ARGV[4], ARGV[1])
end
return 1
`

// casStatusScript moves one ticket between statuses only if it is still in
// the expected one. Returns -1 when the ticket is missing, 0 when the status
// did not match, 1 on success.
//
// KEYS: ticket hash
// ARGV: expected, next, updated_at, key prefix
const casStatusScript = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return -1
end
if status ~= ARGV[1] then
	return 0
end
local p = ARGV[4]
local id = redis.call('HGET', KEYS[1], 'id')
local queue = redis.call('HGET', KEYS[1], 'queue_id')
local user = redis.call('HGET', KEYS[1], 'user_id')
local number = redis.call('HGET', KEYS[1], 'ticket_number')
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updated_at', ARGV[3])
redis.call('ZREM', p .. ':tickets:' .. ARGV[1], id)
redis.call('ZREM', p .. ':queue:' .. queue .. ':tickets:' .. ARGV[1], id)
redis.call('ZADD', p .. ':tickets:' .. ARGV[2], number, id)
redis.call('ZADD', p .. ':queue:' .. queue .. ':tickets:' .. ARGV[2], number, id)
if ARGV[2] == 'served' or ARGV[2] == 'cancelled' then
	local guard = p .. ':active:' .. queue .. ':' .. user
	if redis.call('GET', guard) == id then
		redis.call('DEL', guard)
	end
	redis.call('ZREM', p .. ':user:' .. user .. ':active', id)
end
return 1
`

// bulkStatusScript moves every ticket of one queue in the given statuses to
// next in a single atomic step and returns the number moved.
//
// ARGV: key prefix, queue_id, next, updated_at, from statuses...
const bulkStatusScript = `
local p, queue, nxt, updated = ARGV[1], ARGV[2], ARGV[3], ARGV[4]
local moved = 0
for i = 5, #ARGV do
	local from = ARGV[i]
	if from ~= nxt then
		local qkey = p .. ':queue:' .. queue .. ':tickets:' .. from
		local entries = redis.call('ZRANGE', qkey, 0, -1, 'WITHSCORES')
		for j = 1, #entries, 2 do
			local id, number = entries[j], entries[j + 1]
			local tkey = p .. ':ticket:' .. id
			local user = redis.call('HGET', tkey, 'user_id')
			redis.call('HSET', tkey, 'status', nxt, 'updated_at', updated)
			redis.call('ZREM', p .. ':tickets:' .. from, id)
			redis.call('ZADD', p .. ':tickets:' .. nxt, number, id)
			redis.call('ZADD', p .. ':queue:' .. queue .. ':tickets:' .. nxt, number, id)
			if (nxt == 'served' or nxt == 'cancelled') and user then
				redis.call('DEL', p .. ':active:' .. queue .. ':' .. user)
				redis.call('ZREM', p .. ':user:' .. user .. ':active', id)
			end
			moved = moved + 1
		end
		redis.call('DEL', qkey)
	end
end
return moved
`

// findTicketsScript reads index members and their ticket hashes in one
// atomic step, so every returned ticket still has the status of the index it
// was read from. Empty hashes are skipped.
//
// KEYS: sorted-set indexes scored by ticket number
// ARGV: max score, limit (0 for all), '1' for descending order, ticket key prefix
const findTicketsScript = `
local max, limit, desc, prefix = ARGV[1], tonumber(ARGV[2]), ARGV[3] == '1', ARGV[4]
local out = {}
for _, key in ipairs(KEYS) do
	local ids
	if desc then
		if limit > 0 then
			ids = redis.call('ZREVRANGEBYSCORE', key, max, '-inf', 'LIMIT', 0, limit)
		else
			ids = redis.call('ZREVRANGEBYSCORE', key, max, '-inf')
		end
	else
		if limit > 0 then
			ids = redis.call('ZRANGEBYSCORE', key, '-inf', max, 'LIMIT', 0, limit)
		else
			ids = redis.call('ZRANGEBYSCORE', key, '-inf', max)
		end
	end
	for _, id in ipairs(ids) do
		local fields = redis.call('HGETALL', prefix .. id)
		if #fields > 0 then
			out[#out + 1] = fields
		end
	end
end
return out
`

// setQueueActiveScript flips is_active on an existing queue. Returns 0 when
// the queue does not exist.
//
// KEYS: queue hash
// ARGV: is_active
const setQueueActiveScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'is_active', ARGV[1])
return 1
`

// deleteQueueScript removes a queue and its registry entry. Ticket records
// and their indexes stay as history.
//
// KEYS: queue hash, queue registry index
// ARGV: queue_id
const deleteQueueScript = `
if redis.call('DEL', KEYS[1]) == 0 then
	return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`
